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

// Review kinds.
const (
	ReviewTemporaryRunner = "temporary-runner"
	ReviewReentry         = "reentry"
)

// Review is the single offer currently waiting for a confirm or cancel.
type Review struct {
	Kind    string        `json:"kind"`
	Return  *ReturnOffer  `json:"return,omitempty"`
	Reentry *ReentryOffer `json:"reentry,omitempty"`
}

// ReviewQueue serializes pending offers. Temporary-runner returns always come
// before reentry offers, and within a kind the lowest slot comes first. The queue is
// derived from the lineup on every call; the only state it keeps is the set of
// reentry slots declined during the current review.
type ReviewQueue struct {
	Declined map[int]bool
}

func newReviewQueue() ReviewQueue {
	return ReviewQueue{Declined: make(map[int]bool)}
}

// Restart begins a new review. Previously declined offers become eligible again.
func (q *ReviewQueue) Restart() {
	q.Declined = make(map[int]bool)
}

// Head returns the pending review, if any.
func (q *ReviewQueue) Head(l *LineupState) (Review, bool) {
	for _, slot := range l.tempRunnerSlots() {
		if o, ok := l.buildReturnOffer(slot); ok {
			return Review{Kind: ReviewTemporaryRunner, Return: &o}, true
		}
	}
	if o, ok := l.detectReentry(q.Declined); ok {
		return Review{Kind: ReviewReentry, Reentry: &o}, true
	}
	return Review{}, false
}

// Pending lists every queued review in the order they will surface.
func (q *ReviewQueue) Pending(l *LineupState) []Review {
	var out []Review
	for _, slot := range l.tempRunnerSlots() {
		if o, ok := l.buildReturnOffer(slot); ok {
			out = append(out, Review{Kind: ReviewTemporaryRunner, Return: &o})
		}
	}
	for _, slot := range l.NonStarterSlots() {
		if q.Declined[slot] {
			continue
		}
		if o, ok := l.reentryOfferFor(slot); ok {
			out = append(out, Review{Kind: ReviewReentry, Reentry: &o})
		}
	}
	return out
}
