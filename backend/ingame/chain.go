// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingame

// MaxChainHops bounds reverse chain lookups. Longer chains are treated as malformed there.
const MaxChainHops = 64

// ChainLink is the outgoing edge of a replaced player.
type ChainLink struct {
	ReplacementID string `json:"replacementId,omitempty"`
	HasReentered  bool   `json:"hasReentered"`
}

// ChainHistory is a directed graph of substitutions: replaced id -> replacement.
// Following ReplacementID from an original starter leads to whoever represents
// that starter's slot now.
type ChainHistory map[string]ChainLink

// Link records that from was replaced by to. The reentry flag of from is kept.
func (c ChainHistory) Link(from, to string) {
	l := c[from]
	l.ReplacementID = to
	c[from] = l
}

// Replaced reports whether id was ever taken out of the game through a substitution.
func (c ChainHistory) Replaced(id string) bool {
	l, ok := c[id]
	return ok && l.ReplacementID != ""
}

// HasReentered reports whether the starter already used their one return.
func (c ChainHistory) HasReentered(id string) bool {
	return c[id].HasReentered
}

// ResolveLatestOccupant walks forward from starterID and returns the last distinct
// node. A recurring node stops the walk.
func (c ChainHistory) ResolveLatestOccupant(starterID string) string {
	cur := starterID
	visited := map[string]bool{cur: true}
	for {
		next := c[cur].ReplacementID
		if next == "" || visited[next] {
			return cur
		}
		visited[next] = true
		cur = next
	}
}

// terminal follows the chain from id and reports the end node. ok is false when the
// chain recurs or exceeds MaxChainHops.
func (c ChainHistory) terminal(id string) (string, bool) {
	cur := id
	visited := map[string]bool{cur: true}
	for hops := 0; hops <= MaxChainHops; hops++ {
		next := c[cur].ReplacementID
		if next == "" {
			return cur, true
		}
		if visited[next] {
			return "", false
		}
		visited[next] = true
		cur = next
	}
	return "", false
}

// ResolveOriginalStarter answers "who is this person, originally". A starter resolves
// to themselves; anyone else resolves to the starter whose chain ends at currentID.
// ok is false when no starter's chain ends there.
func (c ChainHistory) ResolveOriginalStarter(currentID string, initial Assignment) (string, bool) {
	if currentID == "" {
		return "", false
	}
	if initial.Holds(currentID) {
		return currentID, true
	}
	for _, p := range Positions {
		starter := initial[p]
		if starter == "" {
			continue
		}
		if end, ok := c.terminal(starter); ok && end == currentID {
			return starter, true
		}
	}
	return "", false
}
