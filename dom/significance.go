package dom

// TagSet is a set of lowercase tag names.
type TagSet map[string]struct{}

// NewTagSet builds a TagSet from tag names.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// SignificantTags lists the landmark, heading, form, media, table and dialog
// tags that are never truncated by the structure serializer.
var SignificantTags = NewTagSet(
	"main", "nav", "header", "footer", "article", "section", "aside",
	"h1", "h2", "h3",
	"form", "button", "input", "select", "textarea",
	"a", "img", "video", "audio",
	"table", "dialog",
)

// IsSignificant reports whether n is structurally important: its tag is in
// tags, or it carries an id, a role or at least one class.
func IsSignificant(n *Node, tags TagSet) bool {
	if !n.IsElement() {
		return false
	}
	if tags.Has(n.Tag) {
		return true
	}
	return n.ID() != "" || n.Role() != "" || len(n.Classes()) > 0
}
