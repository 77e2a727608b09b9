/*
Package operator maintains the handle-addressed tree of live application objects.

A Node stands for one view or object of the host application (a window, a form,
a grid). Scripts never hold the objects themselves, only their handles; the
dispatcher resolves the handle through the Tree on every call.

Nodes may be created before their object exists. Reload asks the host to (re)open
the view through the node's reopen action and blocks until the host calls
Tree.Attach for the same handle, or until the reload timeout expires.
*/
package operator
