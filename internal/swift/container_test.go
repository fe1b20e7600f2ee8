package swift

import "testing"

func TestParseContainer(t *testing.T) {
	tests := []struct {
		name   string
		db     string
		zone   string
		wantOK bool
	}{
		{name: "miraheze-testwiki-local-public", db: "testwiki", zone: "local-public", wantOK: true},
		{name: "miraheze-my-wiki-local-thumb", db: "my-wiki", zone: "local-thumb", wantOK: true},
		{name: "miraheze-createwiki-persistent-model", db: "createwiki", zone: "persistent-model", wantOK: true},
		{name: "miraheze-testwiki", wantOK: false},
		{name: "other-testwiki-local-public", wantOK: false},
		{name: "miraheze-testdb-local-public", wantOK: false},
	}
	for _, tc := range tests {
		db, zone, ok := ParseContainer("miraheze", "wiki", tc.name)
		if ok != tc.wantOK || db != tc.db || zone != tc.zone {
			t.Fatalf("ParseContainer(%q) = %q,%q,%v want %q,%q,%v", tc.name, db, zone, ok, tc.db, tc.zone, tc.wantOK)
		}
	}
}

func TestContainerNames(t *testing.T) {
	if got := ContainerPrefix("miraheze", "testwiki"); got != "miraheze-testwiki-" {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if got := ContainerName("miraheze", "testwiki", ZonePublic); got != "miraheze-testwiki-local-public" {
		t.Fatalf("unexpected name: %q", got)
	}
	if belongsTo("miraheze-testwiki2-local-public", "testwiki") {
		t.Fatalf("testwiki2 container must not belong to testwiki")
	}
}
