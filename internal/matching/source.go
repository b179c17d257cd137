package matching

import "fmt"

// ImageSource tags the capture provenance of a matched image.
type ImageSource int

const (
	SourceDocumentPrinted  ImageSource = 1
	SourceDocumentRFID     ImageSource = 2
	SourceLive             ImageSource = 3
	SourceDocumentWithLive ImageSource = 4
	SourceExternal         ImageSource = 5
	SourceGhost            ImageSource = 6
)

// rank orders sources by trust; lower ranks are reported as the first side of a pair.
var rank = map[ImageSource]int{
	SourceGhost:            1,
	SourceExternal:         2,
	SourceLive:             3,
	SourceDocumentRFID:     4,
	SourceDocumentWithLive: 5,
	SourceDocumentPrinted:  6,
}

func (s ImageSource) Valid() bool {
	_, ok := rank[s]
	return ok
}

func (s ImageSource) String() string {
	switch s {
	case SourceDocumentPrinted:
		return "document_printed"
	case SourceDocumentRFID:
		return "document_rfid"
	case SourceLive:
		return "live"
	case SourceDocumentWithLive:
		return "document_with_live"
	case SourceExternal:
		return "external"
	case SourceGhost:
		return "ghost"
	default:
		return fmt.Sprintf("source_%d", int(s))
	}
}

// Outranks reports whether s takes precedence over other.
func (s ImageSource) Outranks(other ImageSource) bool {
	return rank[s] < rank[other]
}
