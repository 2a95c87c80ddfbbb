package workspace

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/matchbench/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

const robotPlayer = `package alpha;

import static alpha.Util.*;
import battlecode.common.*;

public strictfp class RobotPlayer {
    // package alphabet is not ours
}
`

func gitRepo(t *testing.T) (dir, commit string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir = t.TempDir()
	run := func(args ...string) string {
		cmd := exec.Command("git", append([]string{"-c", "user.name=bench", "-c", "user.email=bench@example.com"}, args...)...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
		return strings.TrimSpace(string(out))
	}
	run("init", "-q")
	src := filepath.Join(dir, "src", "alpha")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"RobotPlayer.java": robotPlayer,
		"Util.java":        "package alpha;\n\nclass Util {}\n",
		"nested/Skip.java": "package alpha.nested;\n",
	} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	run("add", ".")
	run("commit", "-q", "-m", "players")
	return dir, run("rev-parse", "HEAD")
}

func TestCheckout(t *testing.T) {
	Convey("Given a repository with a player package", t, func() {
		dir, commit := gitRepo(t)
		w := New(dir, WithConcurrency(2))

		Convey("When the package is checked out at its commit", func() {
			name, err := w.Checkout(context.Background(), "alpha", commit)
			So(err, ShouldBeNil)

			Convey("Then the files land in a renamed package", func() {
				So(name, ShouldEqual, "benchmark_alpha_"+commit)
				got, err := os.ReadFile(filepath.Join(dir, "src", name, "RobotPlayer.java"))
				So(err, ShouldBeNil)
				So(string(got), ShouldStartWith, "package "+name+";")
				So(string(got), ShouldContainSubstring, "import static "+name+".Util.*;")
				So(string(got), ShouldContainSubstring, "import battlecode.common.*;")
				So(string(got), ShouldContainSubstring, "package alphabet is not ours")

				_, err = os.Stat(filepath.Join(dir, "src", name, "Util.java"))
				So(err, ShouldBeNil)
				_, err = os.Stat(filepath.Join(dir, "src", name, "nested"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When the commit does not exist", func() {
			_, err := w.Checkout(context.Background(), "alpha", "0000000000000000000000000000000000000000")

			Convey("Then a checkout error is returned", func() {
				So(errors.Is(err, ErrCheckout), ShouldBeTrue)
			})
		})
	})
}

func TestBuild(t *testing.T) {
	Convey("Given a workspace with a passing build", t, func() {
		w := New(t.TempDir(), WithBuildCommand(`sh -c "echo compiled"`))

		Convey("Then the build succeeds", func() {
			So(w.Build(context.Background()), ShouldBeNil)
		})
	})

	Convey("Given a workspace with a failing build", t, func() {
		w := New(t.TempDir(), WithBuildCommand(`sh -c "echo 'cannot find symbol'; exit 2"`))
		err := w.Build(context.Background())

		Convey("Then the build error carries the output", func() {
			So(errors.Is(err, ErrBuild), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "cannot find symbol")
		})
	})

	Convey("Given an empty build command", t, func() {
		w := New(t.TempDir(), WithBuildCommand(" "))

		Convey("Then the build is rejected", func() {
			So(errors.Is(w.Build(context.Background()), ErrBuild), ShouldBeTrue)
		})
	})
}

func TestHelpers(t *testing.T) {
	Convey("Tree listings keep only blobs", t, func() {
		listing := "100644 blob aaa\tA.java\n040000 tree bbb\tsub\n100644 blob ccc\tB.java\n"
		So(blobNames([]byte(listing)), ShouldResemble, []string{"A.java", "B.java"})
	})

	Convey("The renamer leaves longer package names alone", t, func() {
		rename := renamer("noop", "benchmark_noop_1")
		So(string(rename([]byte("package noop;\npackage noopy;\nimport static  noop.X;\n"))), ShouldEqual,
			"package benchmark_noop_1;\npackage noopy;\nimport static  benchmark_noop_1.X;\n")
	})
}
