package topic

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"doc.cel.added", "doc.cel.added", true},
		{"doc.cel.added", "doc.cel.*", true},
		{"doc.cel.added", "doc.*", false},
		{"doc.cel.added", "doc.**", true},
		{"doc", "doc.**", true},
		{"doc.cel.added", "**", true},
		{"doc.cel.added", "*.cel.*", true},
		{"doc.layer.added", "*.cel.*", false},
		{"doc.cel", "doc.cel.*", false},
		{"doc.a.b.c", "doc.**.c", true},
		{"doc.a.b.c", "doc.**.d", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic)+"~"+string(tt.pattern), func(t *testing.T) {
			if got := tt.topic.Matches(tt.pattern); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		topic Topic
		want  bool
	}{
		{"doc.cel", true},
		{"doc", true},
		{"", false},
		{".doc", false},
		{"doc.", false},
		{"doc..cel", false},
	}
	for _, tt := range tests {
		if got := tt.topic.IsValid(); got != tt.want {
			t.Errorf("%q.IsValid() = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestParentChild(t *testing.T) {
	tp := Join("doc", "cel", "added")
	if tp.Parent() != "doc.cel" {
		t.Errorf("Parent() = %q", tp.Parent())
	}
	if Topic("doc").Parent() != "" {
		t.Error("single segment has no parent")
	}
	if Topic("doc").Child("mask") != "doc.mask" {
		t.Errorf("Child() = %q", Topic("doc").Child("mask"))
	}
	if !Topic("doc.*").IsWildcard() || Topic("doc.cel").IsWildcard() {
		t.Error("IsWildcard mismatch")
	}
}
