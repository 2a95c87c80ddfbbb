package match_test

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/matchbench/internal/domain/match"
	"github.com/okian/matchbench/internal/domain/model"
)

func TestBuilder(t *testing.T) {
	Convey("Given a builder for the gradle fastrun task", t, func() {
		b, err := match.NewBuilder("./gradlew fastrun",
			match.WithDir("/work"),
			match.WithSourceRoot("src"),
			match.WithBuildRoot("out"),
		)
		So(err, ShouldBeNil)

		alpha := model.Competitor{Name: "alpha", Params: []string{"-Dx=1", "-Dy"}}
		beta := model.Competitor{Name: "benchmark_noop_ec78354"}

		Convey("When building a valid invocation", func() {
			inv, err := b.Build(alpha, beta, "Big", 4, 5)

			Convey("Then the command and the match properties are resolved", func() {
				So(err, ShouldBeNil)
				So(inv.Path, ShouldEqual, "./gradlew")
				So(inv.Dir, ShouldEqual, "/work")
				So(inv.Args, ShouldResemble, []string{
					"fastrun",
					"-PteamA=alpha",
					"-PteamB=benchmark_noop_ec78354",
					"-PparamA=-Dx=1 -Dy",
					"-PparamB=",
					"-Pmaps=Big",
					"-PseedA=4",
					"-PseedB=5",
					"-PsourceRoot=src",
					"-PbuildRoot=out",
				})
			})
		})

		Convey("When building from a matchup", func() {
			inv, err := b.BuildMatchup(model.Matchup{A: beta, B: alpha, Map: "Small", SeedA: 0, SeedB: 1})

			Convey("Then physical sides follow the matchup", func() {
				So(err, ShouldBeNil)
				So(inv.Args[1], ShouldEqual, "-PteamA=benchmark_noop_ec78354")
				So(inv.Args[2], ShouldEqual, "-PteamB=alpha")
			})
		})

		Convey("When inputs are invalid", func() {
			_, errMap := b.Build(alpha, beta, "", 0, 1)
			_, errSeed := b.Build(alpha, beta, "Big", -1, 1)
			_, errName := b.Build(model.Competitor{}, beta, "Big", 0, 1)

			Convey("Then each is rejected as an invalid invocation", func() {
				So(errors.Is(errMap, match.ErrInvalidInvocation), ShouldBeTrue)
				So(errors.Is(errSeed, match.ErrInvalidInvocation), ShouldBeTrue)
				So(errors.Is(errName, match.ErrInvalidInvocation), ShouldBeTrue)
			})
		})
	})

	Convey("Given unusable match commands", t, func() {
		_, errEmpty := match.NewBuilder("   ")
		_, errQuote := match.NewBuilder(`./run "unterminated`)

		Convey("Then the builder cannot be created", func() {
			So(errors.Is(errEmpty, match.ErrInvalidInvocation), ShouldBeTrue)
			So(errors.Is(errQuote, match.ErrInvalidInvocation), ShouldBeTrue)
		})
	})

	Convey("Given a builder with defaults", t, func() {
		b, err := match.NewBuilder("java -jar server.jar")
		So(err, ShouldBeNil)

		inv, err := b.Build(model.Competitor{Name: "a"}, model.Competitor{Name: "b"}, "Big", 0, 1)

		Convey("Then default roots and directory are used", func() {
			So(err, ShouldBeNil)
			So(inv.Path, ShouldEqual, "java")
			So(inv.Args[:2], ShouldResemble, []string{"-jar", "server.jar"})
			So(inv.Dir, ShouldEqual, ".")
			So(inv.Args[len(inv.Args)-2], ShouldEqual, "-PsourceRoot=./src")
			So(inv.Args[len(inv.Args)-1], ShouldEqual, "-PbuildRoot=./build")
		})
	})
}
