/*
Package remote runs scripts on another machine.

The hub side (Hub, Manager) accepts websocket connections on /runner. Each
connection opens with a start frame choosing the execution mode and becomes
one session: in-process sessions interpret scripts inside the hub, process and
container sessions relay lines to an executor child. Idle sessions are swept
on a cron schedule and live sessions are recorded in a ports.SessionDirectory.

The client side (Transport) implements ports.Transport over the same socket.
*/
package remote
