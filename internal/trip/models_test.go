package trip

import (
	"reflect"
	"testing"
	"time"

	"backend-tripjournal/internal/store"
)

func TestNewCode(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code := NewCode()
		if len(code) != 6 {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		if code != NormalizeCode(code) {
			t.Fatalf("code %q not canonical", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("codes look constant")
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  AB12cd "); got != "ab12cd" {
		t.Fatalf("normalize = %q", got)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	in := Trip{
		ID:         "ab12cd",
		OwnerUID:   "u-dana",
		Title:      "Alps",
		Comment:    "summer loop",
		Image:      "https://cdn.example.com/alps.jpg",
		StartDate:  time.Unix(1700000000, 0).UTC(),
		EndDate:    time.Unix(1700600000, 0).UTC(),
		Shared:     true,
		CanRead:    []string{"u-a"},
		CanWrite:   []string{"u-b"},
		InvitRead:  []string{"u-c"},
		InvitWrite: []string{"u-d"},
	}

	out := FromDocument(store.Document(in.Document()))
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip changed trip:\n in  %+v\n out %+v", in, out)
	}
}

func TestFromDocumentToleratesJSONWidening(t *testing.T) {
	// a JSONB read returns float64 numbers and []any slices
	doc := map[string]any{
		"id":         "ab12cd",
		"ownerUid":   "u-dana",
		"startDate":  float64(1700000000),
		"endDate":    float64(1700600000),
		"shared":     true,
		"canRead":    []any{"u-a", 42},
		"canWrite":   []any{},
		"invitRead":  nil,
		"invitWrite": []any{"u-d"},
	}

	got := FromDocument(doc)
	if got.StartDate.Unix() != 1700000000 {
		t.Fatalf("startDate = %v", got.StartDate)
	}
	if !reflect.DeepEqual(got.CanRead, []string{"u-a"}) {
		t.Fatalf("canRead = %v", got.CanRead)
	}
	if len(got.CanWrite) != 0 || got.InvitRead != nil {
		t.Fatalf("unexpected sets: %+v", got)
	}
	if !got.Shared {
		t.Fatalf("shared flag lost")
	}
}

func TestDocumentEmptySets(t *testing.T) {
	doc := Trip{ID: "ab12cd"}.Document()
	for _, field := range []string{"canRead", "canWrite", "invitRead", "invitWrite"} {
		set, ok := doc[field].([]string)
		if !ok || set == nil {
			t.Fatalf("%s must be an empty slice, got %#v", field, doc[field])
		}
	}
}

func TestReadableWritable(t *testing.T) {
	tr := Trip{
		ID:       "ab12cd",
		OwnerUID: "u-owner",
		CanRead:  []string{"u-reader"},
		CanWrite: []string{"u-editor"},
	}

	if !tr.Readable("u-owner") || !tr.Readable("u-reader") || !tr.Readable("u-editor") {
		t.Fatalf("members must be able to read")
	}
	if tr.Readable("u-stranger") {
		t.Fatalf("stranger must not read a private trip")
	}
	tr.Shared = true
	if !tr.Readable("u-stranger") {
		t.Fatalf("anyone may read a public trip")
	}

	if !tr.Writable("u-owner") || !tr.Writable("u-editor") {
		t.Fatalf("owner and editors must write")
	}
	if tr.Writable("u-reader") || tr.Writable("u-stranger") {
		t.Fatalf("readers must not write")
	}
}
