package match_test

import (
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/matchbench/internal/domain/match"
	"github.com/okian/matchbench/internal/domain/model"
)

const transcriptB = `> Task :fastrun
[server] -------------------- Match Starting --------------------
[server] alpha vs. beta on Big
[server] beta (B) wins (round 1500)
[server] Reason: The winning team won by tiebreaker.
[server] -------------------- Match Finished --------------------
`

func TestParseWinner(t *testing.T) {
	Convey("Given a transcript where side B wins", t, func() {
		out := []byte(transcriptB)

		Convey("Then side B is reported", func() {
			side, err := match.ParseWinner(out)
			So(err, ShouldBeNil)
			So(side, ShouldEqual, model.SideB)
		})

		Convey("Then parsing twice gives the same answer", func() {
			first, err1 := match.ParseWinner(out)
			second, err2 := match.ParseWinner(out)
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(first, ShouldEqual, second)
		})
	})

	Convey("Given a winner line without a trailing newline", t, func() {
		side, err := match.ParseWinner([]byte("[server] alpha (A) wins (round 42)"))

		Convey("Then side A is reported", func() {
			So(err, ShouldBeNil)
			So(side, ShouldEqual, model.SideA)
		})
	})

	Convey("Given malformed transcripts", t, func() {
		cases := []string{
			"",
			"BUILD FAILED\n",
			"[server] wins\n",
			"[server] alpha ?? wins (round 3)\n",
		}

		Convey("Then each reports malformed output", func() {
			for _, c := range cases {
				_, err := match.ParseWinner([]byte(c))
				So(errors.Is(err, match.ErrMalformedOutput), ShouldBeTrue)
			}
		})
	})
}

func TestChattyTranscript(t *testing.T) {
	Convey("Given a quiet transcript", t, func() {
		So(match.ChattyTranscript([]byte(transcriptB)), ShouldBeFalse)
	})

	Convey("Given a transcript with robot output between the markers", t, func() {
		noisy := strings.Replace(transcriptB, "[server] alpha vs. beta on Big\n",
			"[server] alpha vs. beta on Big\n[A:HQ#1@1] hi\n[A:HQ#1@2] hi\n[A:HQ#1@3] hi\n", 1)

		So(match.ChattyTranscript([]byte(noisy)), ShouldBeTrue)
	})

	Convey("Given a transcript without markers", t, func() {
		So(match.ChattyTranscript([]byte("a\nb\nc\nd\ne\nf\n")), ShouldBeFalse)
	})
}
