package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
)

// ErrMessageNotFound means the catalog lacks a message the selector needs.
// It signals a catalog/engine version mismatch and is never retried.
var ErrMessageNotFound = errors.New("engine: message not found")

// Ref is a parsed message id: the group it lives in and the id within it.
type Ref struct {
	Namespace catalog.Namespace
	ID        string
}

// ParseRef splits an id of the form "NS:KEY" or "NS.KEY". For the dotted form
// the namespace is everything before the last dot, so "RISCI.STRESS.PRESC.OK"
// resolves to group "RISCI.STRESS.PRESC". In the colon form a bare key is
// qualified with the namespace: "SMA.PLANNING:LOW" looks for "SMA.PLANNING.LOW".
func ParseRef(id string) Ref {
	id = strings.TrimSpace(id)
	if ns, key, ok := strings.Cut(id, ":"); ok {
		if !strings.HasPrefix(key, ns+".") {
			key = ns + "." + key
		}
		return Ref{Namespace: catalog.Namespace(ns), ID: key}
	}
	if i := strings.LastIndexByte(id, '.'); i > 0 {
		return Ref{Namespace: catalog.Namespace(id[:i]), ID: id}
	}
	return Ref{Namespace: catalog.Namespace(id), ID: id}
}

func (r Ref) String() string { return string(r.Namespace) + ":" + r.ID }

// PickByID resolves id inside its namespace group. When the group does not
// exist every group is scanned in namespace order; degraded reports that this
// fallback was taken. A group that exists but lacks the id is a miss.
func PickByID(cat *catalog.Catalog, id string) (msg catalog.Message, degraded bool, err error) {
	ref := ParseRef(id)
	if list, ok := cat.Group(ref.Namespace); ok {
		for _, m := range list {
			if m.ID == ref.ID {
				return m, false, nil
			}
		}
		return catalog.Message{}, false, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	// degraded path for ids whose prefix is not a group name
	for _, ns := range cat.Namespaces() {
		list, _ := cat.Group(ns)
		for _, m := range list {
			if m.ID == ref.ID {
				return m, true, nil
			}
		}
	}
	return catalog.Message{}, false, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
}

// FilterByStage keeps the messages applicable at stage s, in authoring order.
func FilterByStage(list []catalog.Message, s catalog.Stage) []catalog.Message {
	out := make([]catalog.Message, 0, len(list))
	for _, m := range list {
		if m.AppliesTo(s) {
			out = append(out, m)
		}
	}
	return out
}

// FindByBands picks a message for the band probe. Preference order:
//  1. the first message whose band requirements match every probe key,
//  2. the first message with no band requirements,
//  3. the first message.
//
// Authoring order breaks ties at every level.
func FindByBands(list []catalog.Message, probe map[string]string) (catalog.Message, error) {
	if len(list) == 0 {
		return catalog.Message{}, fmt.Errorf("%w: empty candidate list", ErrMessageNotFound)
	}
	for _, m := range list {
		if matches(m, probe) {
			return m, nil
		}
	}
	for _, m := range list {
		if len(m.Bands) == 0 {
			return m, nil
		}
	}
	return list[0], nil
}

func matches(m catalog.Message, probe map[string]string) bool {
	if len(m.Bands) == 0 {
		return false
	}
	for k, v := range probe {
		if m.Bands[k] != v {
			return false
		}
	}
	return true
}
