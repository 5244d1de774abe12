/*
Package broadcast sends one prompt to many panels.

# Strategies

Each destination site is described by a declarative types.StrategySpec:
input selectors in priority order, how to assign the value, submit rules
in priority order and optional attachment hints. Compile validates the
selectors with cascadia, renders the fill, submit and attach scripts from
templates and syntax-checks them with goja. A Table holds the compiled
records and always has a "generic" fallback.

Resolution order for a panel:

 1. a record whose site key equals the panel id
 2. a record with a host glob matching the panel URL
 3. a record whose site key equals the URL's site identity
    (the registrable domain without its public suffix)
 4. the generic record

# Pipeline

For every target the Dispatcher runs, independently:

	attach (optional, never fatal) -> fill -> settle -> submit

Targets run concurrently with a bounded errgroup. Each target recovers its
own panics and every surface call carries a timeout, so one hung or broken
page only fails its own entry in the BroadcastResult.

Diagnose runs a strategy against captured markup with goquery, which
helps tell "site layout changed" from "page not loaded".
*/
package broadcast
