// Package flowtable implements the bidirectional flow table: the mapping
// from a directional FlowKey to its FlowRecord, creation under a size cap,
// bidirectionality detection, and idle eviction. See spec.md §4.1.
package flowtable

import "connmon/internal/model"

// Table owns the live FlowRecords, bounded by MaxFlows.
type Table struct {
	flows    map[model.FlowKey]*model.FlowRecord
	maxFlows int
}

// New creates an empty flow table capped at maxFlows live records.
func New(maxFlows int) *Table {
	return &Table{
		flows:    make(map[model.FlowKey]*model.FlowRecord),
		maxFlows: maxFlows,
	}
}

// GetOrCreate returns the existing FlowRecord for key, or creates one if the
// live count is below the cap. created reports whether a new record was
// made; dropped reports whether creation was refused because the table is
// at capacity (spec.md §4.1's CapacityDrop). On creation, if the reverse
// flow already has a record, both records' Bidirectional flag is set.
func (t *Table) GetOrCreate(key model.FlowKey) (rec *model.FlowRecord, created bool, dropped bool) {
	if rec, ok := t.flows[key]; ok {
		return rec, false, false
	}
	if len(t.flows) >= t.maxFlows {
		return nil, false, true
	}
	rec = &model.FlowRecord{Name: key.Name()}
	t.flows[key] = rec
	if revRec, ok := t.flows[key.Reverse()]; ok {
		revRec.Bidirectional = true
		rec.Bidirectional = true
	}
	return rec, true, false
}

// EvictIdle removes every FlowRecord whose LastTime is older than
// now-flowMaxIdle.
func (t *Table) EvictIdle(now, flowMaxIdle float64) {
	cutoff := now - flowMaxIdle
	for k, rec := range t.flows {
		if rec.LastTime < cutoff {
			delete(t.flows, k)
		}
	}
}

// Len reports the number of live flows.
func (t *Table) Len() int { return len(t.flows) }
