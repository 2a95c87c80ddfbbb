//go:build unix

package process

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestKillProcessGroup(t *testing.T) {
	Convey("Given a match that forks a child of its own", t, func() {
		// A long wait delay means only a dead child releases the output pipes.
		l := NewLauncher(WithWaitDelay(time.Minute))
		h, err := l.Launch(context.Background(), sh("sleep 30; echo late"))
		So(err, ShouldBeNil)
		Reset(func() { _ = h.Kill() })

		_, finished := h.Poll(50 * time.Millisecond)
		So(finished, ShouldBeFalse)

		Convey("When it is killed", func() {
			So(h.Kill(), ShouldBeNil)
			start := time.Now()
			out, done := h.Poll(5 * time.Second)

			Convey("Then the child dies with it and the handle finishes", func() {
				So(done, ShouldBeTrue)
				So(time.Since(start), ShouldBeLessThan, 5*time.Second)
				So(string(out.Stdout), ShouldNotContainSubstring, "late")
			})

			Convey("Then killing again is a no-op", func() {
				So(h.Kill(), ShouldBeNil)
			})
		})
	})

	Convey("Given a match that exits but leaves a child holding its output", t, func() {
		l := NewLauncher(WithWaitDelay(200 * time.Millisecond))
		h, err := l.Launch(context.Background(), sh("sleep 30 & echo started"))
		So(err, ShouldBeNil)
		Reset(func() { _ = h.Kill() })

		out, done := h.Poll(5 * time.Second)

		Convey("Then the handle finishes after the wait delay with the output so far", func() {
			So(done, ShouldBeTrue)
			So(string(out.Stdout), ShouldEqual, "started\n")
		})
	})
}
