package clinical

import "testing"

func TestKeys(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"records", RecordsKey("pid-13"), "ldew:pid-13:records"},
		{"status", StatusKey("pid-13", "1001"), "ldew:pid-13:record:1001:status"},
		{"repeat", RepeatKey("pid-13", "1001"), "ldew:pid-13:record:1001:repeat"},
		{"data", DataKey("pid-13", "1001"), "ldew:pid-13:record:1001:data"},
		{"locks", LocksKey("pid-13", "1001"), "ldew:pid-13:record:1001:locks"},
		{"conflict", ConflictKey("pid-13", "arm_1", "1001"), "ldew:pid-13:conflict:arm_1:1001"},
		{"status channel", StatusEventsChannel("pid-13"), "ldew:pid-13:status_events"},
	}

	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s key = %q, expected %q", tc.name, tc.got, tc.want)
		}
	}
}
