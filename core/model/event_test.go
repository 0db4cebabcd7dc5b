package model

import "testing"

func TestUpdatesFromMapSorted(t *testing.T) {
	got := UpdatesFromMap(map[string]any{"inTempF": 72.5, "inRh": 30.1, "a": true})
	if len(got) != 3 {
		t.Fatalf("expected 3 updates got %d", len(got))
	}
	want := []string{"a", "inRh", "inTempF"}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("position %d: expected %s got %s", i, name, got[i].Name)
		}
	}
	if UpdatesFromMap(nil) != nil {
		t.Fatalf("expected nil for nil map")
	}
}

func TestUpdatesRoundTrip(t *testing.T) {
	in := map[string]any{"on": false, "level": 3.0}
	out := UpdatesToMap(UpdatesFromMap(in))
	if len(out) != 2 || out["on"] != false || out["level"] != 3.0 {
		t.Fatalf("unexpected map %#v", out)
	}
}

func TestEventVariants(t *testing.T) {
	var ev Event = BootstrapRegistered{DeviceID: "dev1"}
	if ev.Type() != EventBootstrapRegistered || ev.Device() != "dev1" {
		t.Fatalf("unexpected registration event %#v", ev)
	}
	ev = DeviceDataReceived{DeviceID: "dev2"}
	if ev.Type().String() != "device_data_received" || ev.Device() != "dev2" {
		t.Fatalf("unexpected data event %#v", ev)
	}
}

func TestCredentialsEqual(t *testing.T) {
	c := Credentials{Username: "admin", Password: "pw"}
	if !c.Equal("admin", "pw") {
		t.Fatal("expected match")
	}
	if c.Equal("admin", "other") || (Credentials{}).Equal("", "") {
		t.Fatal("unexpected match")
	}
}
