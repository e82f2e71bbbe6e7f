// Package cli implements hearthctl, the operations tool that runs next to
// the hearth server.
//
//	hearthctl migrate
//	hearthctl token --principal 5b0c... --ttl 1h
//	hearthctl sweep [--tenant 9f1e...]
//	hearthctl purge --after 2160h
//	hearthctl reconcile --tenant 9f1e...
//
// Configuration is read from the same HEARTH_* environment variables as the
// server.
package cli
