package model

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestInvocationString(t *testing.T) {
	Convey("Given an invocation", t, func() {
		inv := Invocation{
			Path: "./gradlew",
			Args: []string{"fastrun", "-PteamA=alpha", "-PparamA=", "-PparamB=-Da=1 -Db=2", "-Pmaps=Big"},
		}

		Convey("Then it renders a shell-safe command line", func() {
			So(inv.String(), ShouldEqual, `./gradlew fastrun -PteamA=alpha -PparamA= '-PparamB=-Da=1 -Db=2' -Pmaps=Big`)
		})

		Convey("Then empty and quoted arguments survive", func() {
			inv.Args = []string{"", "it's"}
			So(inv.String(), ShouldEqual, `./gradlew '' 'it'\''s'`)
		})
	})
}

func TestCompetitorAndSide(t *testing.T) {
	Convey("Given a competitor with parameters", t, func() {
		c := Competitor{Name: "alpha", Params: []string{"-Dx=1", "-Dy"}}

		Convey("Then params are joined with a single space", func() {
			So(c.JoinedParams(), ShouldEqual, "-Dx=1 -Dy")
			So(Competitor{Name: "beta"}.JoinedParams(), ShouldEqual, "")
		})
	})

	Convey("Sides render as their slot letter", t, func() {
		So(SideA.String(), ShouldEqual, "A")
		So(SideB.String(), ShouldEqual, "B")
	})

	Convey("A result without error is OK", t, func() {
		So(Result{}.OK(), ShouldBeTrue)
		So(Result{Err: errTest}.OK(), ShouldBeFalse)
	})
}

type testErr struct{}

func (testErr) Error() string { return "test" }

var errTest error = testErr{}
