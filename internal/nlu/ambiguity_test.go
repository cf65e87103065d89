package nlu

import "testing"

func TestDetectPureTimeInput(t *testing.T) {
	guard := NewAmbiguityGuard()

	pure := []string{
		"下午3點",
		"下午",
		"晚上",
		"3點",
		"3點半",
		"15:30",
		"十點半",
		"明天下午3點",
		"明天",
		"明天下午",
		"後天晚上",
		"下週三下午4點",
	}
	for _, text := range pure {
		t.Run("pure/"+text, func(t *testing.T) {
			got := guard.DetectPureTimeInput(text)
			if !got.IsPureTimeInput {
				t.Fatalf("expected %q to be rejected as pure time", text)
			}
			if got.RejectionMessage == "" {
				t.Fatal("rejection message must be set")
			}
		})
	}

	notPure := []string{
		"",
		"法語課",
		"明天下午3點數學課",
		"取消數學課",
		"小明明天下午3點數學課",
		"下午3點的鋼琴課改到4點",
		// over the length ceiling even though it starts time-like
		"明天下午3點左右我可能會遲到十分鐘",
	}
	for _, text := range notPure {
		t.Run("not/"+text, func(t *testing.T) {
			if guard.DetectPureTimeInput(text).IsPureTimeInput {
				t.Fatalf("%q should not be rejected", text)
			}
		})
	}
}
