package stream

import (
	"fmt"

	"github.com/gogpu/anatomy/codec"
	"github.com/gogpu/anatomy/manifest"
)

// TaskKind selects the decoder a Task runs.
type TaskKind uint8

const (
	// IndexTask decodes an index stream into DrawGroup.Indices.
	IndexTask TaskKind = iota
	// AttribTask decodes a vertex stream into DrawGroup.Vertices.
	AttribTask
)

// String returns the task kind name.
func (k TaskKind) String() string {
	switch k {
	case IndexTask:
		return "indices"
	case AttribTask:
		return "attribs"
	default:
		return fmt.Sprintf("TaskKind(%d)", k)
	}
}

// Task is one pending decode: a stream inside a blob and the group that
// receives it.
type Task struct {
	Kind  TaskKind
	Group int
	Loc   manifest.Location
}

// blobTasks are the tasks reading from one blob.
type blobTasks struct {
	Blob  string
	Tasks []Task
}

// groupTasks buckets the streams of plan by blob. Blobs appear in the
// order the plan first references them; within a blob, tasks keep plan
// order with each group's indices before its attributes.
func groupTasks(plan *manifest.Plan) []blobTasks {
	var out []blobTasks
	pos := make(map[string]int)
	add := func(t Task) {
		i, ok := pos[t.Loc.Blob]
		if !ok {
			i = len(out)
			pos[t.Loc.Blob] = i
			out = append(out, blobTasks{Blob: t.Loc.Blob})
		}
		out[i].Tasks = append(out[i].Tasks, t)
	}
	for gi := range plan.Groups {
		g := &plan.Groups[gi]
		add(Task{Kind: IndexTask, Group: gi, Loc: g.Indices})
		add(Task{Kind: AttribTask, Group: gi, Loc: g.Attribs})
	}
	return out
}

// check reports whether the task's stream lies inside a blob of n units.
func (t Task) check(n int) error {
	if t.Loc.End() > n {
		return fmt.Errorf("%w: %s of group %d ends at %d, blob %q has %d units",
			ErrBlobRange, t.Kind, t.Group, t.Loc.End(), t.Loc.Blob, n)
	}
	return nil
}

// run decodes the task's stream out of blob into its group.
func (t Task) run(blob []uint16, groups []*DrawGroup, s *codec.Scratch) {
	src := blob[t.Loc.Start:t.Loc.End()]
	switch t.Kind {
	case IndexTask:
		groups[t.Group].Indices = codec.IndexBuffer(src, s)
	case AttribTask:
		groups[t.Group].Vertices = codec.VertexBuffer(src, s)
	}
}
