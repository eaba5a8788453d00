// Package event defines the structured types exchanged by formwatch.
// These are the public API contract: DOM hosts produce Batches, the
// watcher emits Detections and Navigations to sinks.
package event

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert Op = "insert" // child node added
	OpRemove Op = "remove" // child node removed
	OpAttr   Op = "attr"   // attribute modified
	OpText   Op = "text"   // character data modified
)

// Structural reports whether the op changes the shape of the tree.
func (op Op) Structural() bool {
	return op == OpInsert || op == OpRemove
}

// Record is a single DOM mutation.
type Record struct {
	Op       Op     `json:"op"`
	NodeType int    `json:"node_type,omitempty"` // 1=element, 3=text, 8=comment
	Tag      string `json:"tag,omitempty"`
	Name     string `json:"name,omitempty"` // attribute name for attr
	Value    string `json:"value,omitempty"`
}

// Batch is every mutation record a host delivered in one callback, the
// equivalent of one MutationObserver invocation.
type Batch struct {
	Seq       uint64   `json:"seq"` // monotonically increasing per subscription
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds
}

// Structural reports whether any record in the batch is an insertion or
// removal.
func (b Batch) Structural() bool {
	for _, r := range b.Records {
		if r.Op.Structural() {
			return true
		}
	}
	return false
}

// Product is the page context collected when the comment form is found.
type Product struct {
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Hash     string `json:"hash,omitempty"` // SHA-256 hex of Markdown
}

// Detection is emitted when the comment form was found and the UI
// container was mounted next to it.
type Detection struct {
	ID        string  `json:"id"`
	PageID    string  `json:"page_id"`
	PageURL   string  `json:"page_url"`
	Selector  string  `json:"selector"`
	Session   uint64  `json:"session"` // presence session generation
	Container string  `json:"container"`
	Product   Product `json:"product"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
}

// Navigation is emitted for every navigation change seen on a page.
type Navigation struct {
	ID        string `json:"id"`
	PageID    string `json:"page_id"`
	Seq       uint64 `json:"seq"`
	Kind      string `json:"kind"` // push | replace | traverse | load
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}
