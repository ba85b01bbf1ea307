package mqttclient

import "testing"

func TestCommandAction(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"voxguide/cmd/capture.start", "capture.start", true},
		{"voxguide/cmd/clear", "clear", true},
		{"voxguide/cmd/", "", false},
		{"voxguide/events/capture", "", false},
		{"other/cmd/clear", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := CommandAction("voxguide", tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CommandAction(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestEventTopic(t *testing.T) {
	if got := EventTopic("kiosk", "playback", "guide"); got != "kiosk/events/playback/guide" {
		t.Errorf("EventTopic = %q", got)
	}
	if got := EventTopic("kiosk", "capture", ""); got != "kiosk/events/capture" {
		t.Errorf("EventTopic = %q", got)
	}
}
