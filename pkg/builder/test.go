package builder

import (
	"context"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// Test runs the smoke tests of an installed formula in a scratch
// directory.  A step passes when it exits with the expected code and
// its output matches the expect pattern, if there is one.
func (b *Builder) Test(ctx context.Context, f *types.Formula, head bool) error {
	keg, err := b.KegPath(f, head)
	if err != nil {
		return err
	}
	if _, err := os.Stat(keg); err != nil {
		return errors.Errorf("%s is not installed", f.Name)
	}
	if len(f.Test) == 0 {
		b.l.Warn("Formula has no tests", "formula", f.Name)
		return nil
	}

	testpath, err := os.MkdirTemp("", "nbrew-test-"+f.Name+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(testpath)

	version := "HEAD"
	if !head {
		if version, err = formula.Version(f); err != nil {
			return err
		}
	}
	v := kegVars(f.Name, version, keg)
	v["testpath"] = testpath

	for i, s := range f.Test {
		args := v.expandAll(s.Run)
		var stdin io.Reader
		if s.Input != "" {
			stdin = strings.NewReader(v.expand(s.Input))
		}

		b.l.Debug("Running test", "formula", f.Name, "step", i, "args", args)
		out, code, _ := b.run(ctx, args, testpath, []string{"PREFIX=" + keg}, stdin)
		if code != s.ExitCode {
			return &BuildError{Formula: f.Name, Phase: "test", Step: i, ExitCode: code, Output: out}
		}
		if s.Expect != "" {
			re, rerr := regexp.Compile("(?m)" + s.Expect)
			if rerr != nil {
				return errors.Wrapf(rerr, "test step %d", i)
			}
			if !re.MatchString(out) {
				b.l.Warn("Test output did not match", "formula", f.Name, "step", i, "expect", s.Expect)
				return &BuildError{Formula: f.Name, Phase: "test", Step: i, ExitCode: code, Output: out}
			}
		}
	}
	b.l.Info("Tests passed", "formula", f.Name)
	return nil
}
