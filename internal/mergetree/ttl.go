package mergetree

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const ttlHeader = "ttl format version: 1"

// TTLBounds are the earliest and latest expiry timestamps (Unix seconds)
// observed for one TTL rule across a part's rows.
type TTLBounds struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// TTLInfo is the parsed content of ttl.txt.
type TTLInfo struct {
	Columns map[string]TTLBounds
	Table   *TTLBounds
}

// ttlTracker folds row expiry timestamps per configured rule while blocks
// stream through the writer.
type ttlTracker struct {
	rules  []TTLRule
	bounds []TTLBounds
	seen   []bool
}

func newTTLTracker(rules []TTLRule) *ttlTracker {
	return &ttlTracker{
		rules:  rules,
		bounds: make([]TTLBounds, len(rules)),
		seen:   make([]bool, len(rules)),
	}
}

// observeBlock folds every row's expiry timestamp into each rule's bounds.
func (t *ttlTracker) observeBlock(b *Block) error {
	for i, rule := range t.rules {
		col, ok := b.Column(rule.Column)
		if !ok {
			return logicErrorf("ttl rule references missing column %q", rule.Column)
		}
		period := int64(rule.Period / time.Second)
		for r := 0; r < col.Len(); r++ {
			expiry := col.ints[r] + period
			if !t.seen[i] {
				t.bounds[i] = TTLBounds{Min: expiry, Max: expiry}
				t.seen[i] = true
				continue
			}
			if expiry < t.bounds[i].Min {
				t.bounds[i].Min = expiry
			}
			if expiry > t.bounds[i].Max {
				t.bounds[i].Max = expiry
			}
		}
	}
	return nil
}

// hasBounds reports whether any rule observed at least one row.
func (t *ttlTracker) hasBounds() bool {
	for _, s := range t.seen {
		if s {
			return true
		}
	}
	return false
}

// info materializes the observed bounds in the shape parseTTL produces.
func (t *ttlTracker) info() *TTLInfo {
	info := &TTLInfo{}
	for i, rule := range t.rules {
		if !t.seen[i] {
			continue
		}
		b := t.bounds[i]
		if rule.Target == "" {
			info.Table = &b
			continue
		}
		if info.Columns == nil {
			info.Columns = make(map[string]TTLBounds)
		}
		info.Columns[rule.Target] = b
	}
	return info
}

type ttlColumnJSON struct {
	Name string `json:"name"`
	Min  int64  `json:"min"`
	Max  int64  `json:"max"`
}

type ttlFileJSON struct {
	Columns []ttlColumnJSON `json:"columns,omitempty"`
	Table   *TTLBounds      `json:"table,omitempty"`
}

// render produces the ttl.txt content: the version header line followed by
// the JSON bounds.
func (t *ttlTracker) render() ([]byte, error) {
	var file ttlFileJSON
	for i, rule := range t.rules {
		if !t.seen[i] {
			continue
		}
		if rule.Target == "" {
			b := t.bounds[i]
			file.Table = &b
			continue
		}
		file.Columns = append(file.Columns, ttlColumnJSON{
			Name: rule.Target,
			Min:  t.bounds[i].Min,
			Max:  t.bounds[i].Max,
		})
	}

	body, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("marshal ttl info: %w", err)
	}
	return append([]byte(ttlHeader+"\n"), body...), nil
}

// parseTTL parses ttl.txt content.
func parseTTL(data []byte) (*TTLInfo, error) {
	rest, ok := strings.CutPrefix(string(data), ttlHeader+"\n")
	if !ok {
		return nil, fmt.Errorf("ttl info: bad header")
	}

	var file ttlFileJSON
	if err := json.Unmarshal([]byte(rest), &file); err != nil {
		return nil, fmt.Errorf("parse ttl info: %w", err)
	}

	info := &TTLInfo{Table: file.Table}
	if len(file.Columns) > 0 {
		info.Columns = make(map[string]TTLBounds, len(file.Columns))
		for _, c := range file.Columns {
			info.Columns[c.Name] = TTLBounds{Min: c.Min, Max: c.Max}
		}
	}
	return info, nil
}
