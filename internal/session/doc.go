// Package session owns the two sockets to the agent for the lifetime of
// the bridge.
//
// [Session.Start] dials the control socket, polls IS_LOGIN until the agent
// reports a logged-in account (the login gate), enables message delivery,
// then dials the event socket and starts the ingestion loop. Control calls
// made through [Session.Call] are serialized: the control socket carries no
// correlation id, so only one call may be outstanding. The ingestion loop
// runs on its own socket and never contends with calls.
//
// [Session.Stop] closes both sockets, waits for the loop, and asks the
// [Agent] collaborator to shut the native agent down.
package session
