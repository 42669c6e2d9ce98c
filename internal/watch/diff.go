package watch

// Field names a watch field in a Changed record.
type Field string

const (
	FieldName      Field = "name"
	FieldDirectory Field = "directory"
	FieldGlob      Field = "glob"
	FieldCommand   Field = "command"
	FieldPattern   Field = "pattern"
	FieldPreset    Field = "preset"
)

// Op says what happened to a watch.
type Op string

const (
	OpAdded    Op = "added"
	OpRemoved  Op = "removed"
	OpModified Op = "modified"
)

// Changed is emitted by whoever mutates the watch list. Field is empty for
// additions and removals.
type Changed struct {
	ID    string `json:"id"`
	Op    Op     `json:"op"`
	Field Field  `json:"field,omitempty"`
}

// Diff compares two watch lists by id. Removals come first, then additions
// and modifications in the order of next.
func Diff(prev, next []Definition) []Changed {
	before := make(map[string]Definition, len(prev))
	for _, d := range prev {
		before[d.ID] = d
	}
	after := make(map[string]struct{}, len(next))
	for _, d := range next {
		after[d.ID] = struct{}{}
	}

	var out []Changed
	for _, d := range prev {
		if _, ok := after[d.ID]; !ok {
			out = append(out, Changed{ID: d.ID, Op: OpRemoved})
		}
	}
	for _, d := range next {
		old, ok := before[d.ID]
		if !ok {
			out = append(out, Changed{ID: d.ID, Op: OpAdded})
			continue
		}
		for _, f := range fieldChanges(old, d) {
			out = append(out, Changed{ID: d.ID, Op: OpModified, Field: f})
		}
	}
	return out
}

func fieldChanges(a, b Definition) []Field {
	var out []Field
	if a.Name != b.Name {
		out = append(out, FieldName)
	}
	if a.Directory != b.Directory {
		out = append(out, FieldDirectory)
	}
	if a.Glob != b.Glob {
		out = append(out, FieldGlob)
	}
	if a.Command != b.Command {
		out = append(out, FieldCommand)
	}
	if a.Pattern != b.Pattern {
		out = append(out, FieldPattern)
	}
	if a.PresetID != b.PresetID {
		out = append(out, FieldPreset)
	}
	return out
}

// Touched returns the ids that appear in changes, in first-seen order.
func Touched(changes []Changed) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range changes {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}
	return ids
}
