package cli

var completionScripts = map[string]string{
	"bash": bashCompletionScript,
	"zsh":  zshCompletionScript,
	"fish": fishCompletionScript,
}

const bashCompletionScript = `# bash completion for wcfx
_wcfx_completion() {
  local cur first
  COMPREPLY=()
  cur="${COMP_WORDS[COMP_CWORD]}"

  if [[ ${COMP_CWORD} -eq 1 ]]; then
    local words
    words="$(wcfx __complete words 2>/dev/null)"
    COMPREPLY=( $(compgen -W "$words --help -h --version -V" -- "$cur") )
    return 0
  fi

  first="${COMP_WORDS[1]}"
  case "$first" in
    completion)
      COMPREPLY=( $(compgen -W "bash zsh fish" -- "$cur") )
      return 0
      ;;
    cache)
      COMPREPLY=( $(compgen -W "clear" -- "$cur") )
      return 0
      ;;
    help)
      COMPREPLY=( $(compgen -W "$(wcfx __complete actions 2>/dev/null)" -- "$cur") )
      return 0
      ;;
    init)
      COMPREPLY=( $(compgen -W "--force" -- "$cur") )
      return 0
      ;;
    actions|status)
      COMPREPLY=( $(compgen -W "--json" -- "$cur") )
      return 0
      ;;
  esac

  local flags
  flags="$(wcfx __complete flags "$first" 2>/dev/null)"
  COMPREPLY=( $(compgen -W "$flags" -- "$cur") )
}
complete -F _wcfx_completion wcfx
`

const zshCompletionScript = `#compdef wcfx
_wcfx_completion() {
  local -a entries flags

  if (( CURRENT == 2 )); then
    entries=(${(f)"$(wcfx __complete words 2>/dev/null)"})
    entries+=(--help -h --version -V)
    _describe 'wcfx entry' entries
    return
  fi

  case "${words[2]}" in
    completion)
      _values 'shell' bash zsh fish
      return
      ;;
    cache)
      _values 'cache command' clear
      return
      ;;
    help)
      entries=(${(f)"$(wcfx __complete actions 2>/dev/null)"})
      _describe 'action' entries
      return
      ;;
    init)
      _values 'init flag' --force
      return
      ;;
    actions|status)
      _values 'flag' --json
      return
      ;;
  esac

  flags=(${(f)"$(wcfx __complete flags ${words[2]} 2>/dev/null)"})
  _describe 'flag' flags
}
compdef _wcfx_completion wcfx
`

const fishCompletionScript = `function __wcfx_words
    commandline -opc
end

function __wcfx_first
    set -l w (__wcfx_words)
    if test (count $w) -ge 2
        echo $w[2]
    end
end

complete -c wcfx -n 'test (count (__wcfx_words)) -eq 1' -a "--help -h --version -V (wcfx __complete words 2>/dev/null)"
complete -c wcfx -n 'test (count (__wcfx_words)) -ge 2; and test (__wcfx_first) = completion' -a "bash zsh fish"
complete -c wcfx -n 'test (count (__wcfx_words)) -ge 2; and test (__wcfx_first) = cache' -a "clear"
complete -c wcfx -n 'test (count (__wcfx_words)) -ge 2; and test (__wcfx_first) = help' -a "(wcfx __complete actions 2>/dev/null)"
complete -c wcfx -n 'test (count (__wcfx_words)) -ge 2; and test (__wcfx_first) = init' -a "--force"
complete -c wcfx -n 'test (count (__wcfx_words)) -ge 2' -a "(wcfx __complete flags (__wcfx_first) 2>/dev/null)"
`
