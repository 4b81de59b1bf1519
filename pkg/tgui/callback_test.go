package tgui

import "testing"

func TestPackUnpack(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		ns     string
		action string
		args   []string
	}{
		{name: "no args", ns: "n", action: "root"},
		{name: "one arg", ns: "n", action: "l", args: []string{"3"}},
		{name: "two args", ns: "n", action: "s", args: []string{"2", "14"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			data := Pack(tt.ns, tt.action, tt.args...)
			ns, action, args, ok := Unpack(data)
			if !ok {
				t.Fatalf("Unpack(%q) not ok", data)
			}
			if ns != tt.ns || action != tt.action {
				t.Fatalf("got %s:%s, want %s:%s", ns, action, tt.ns, tt.action)
			}
			if len(args) != len(tt.args) {
				t.Fatalf("args = %v, want %v", args, tt.args)
			}
			for i := range args {
				if args[i] != tt.args[i] {
					t.Fatalf("args[%d] = %q, want %q", i, args[i], tt.args[i])
				}
			}
		})
	}
}

func TestUnpackRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, data := range []string{"", "n", ":", "n:", ":root"} {
		if _, _, _, ok := Unpack(data); ok {
			t.Fatalf("Unpack(%q) unexpectedly ok", data)
		}
	}
}
