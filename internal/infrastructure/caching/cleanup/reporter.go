package cleanup

import (
	"fmt"
	"io"
	"strings"
)

const (
	cyan    = "\033[38;2;86;182;194m"  // One Dark Cyan: #56B6C2
	dimCyan = "\033[38;2;47;91;102m"   // Dim Cyan: #2F5B66
	grey    = "\033[38;2;110;118;129m" // Brighter Grey: #6E7681
	dimGrey = "\033[38;2;75;82;99m"    // Darker Grey: #4B5263
	success = "\033[38;2;62;130;144m"  // Dim Cyan: #3E8290
	white   = "\033[38;2;171;178;191m" // One Dark Foreground: #ABB2BF
	purple  = "\033[38;2;198;120;221m" // One Dark Purple: #C678DD
	reset   = "\033[0m"
	bold    = "\033[1m"
)

// Reporter prints a coloured cleanup summary for operators watching the console.
type Reporter struct {
	w io.Writer
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

func (r *Reporter) Report(res Result) {
	fmt.Fprintf(r.w, "%s%s✦ %sPERIODIC CLEANUP%s %s(%v)%s\n", success, bold, grey, reset, dimGrey, res.Duration, reset)
	fmt.Fprintf(r.w, "%s✦ sessions:%s reaped:%s%d %sopen:%s%d%s\n",
		purple, reset, white, len(res.ReapedSessions), dimCyan, cyan, res.Remaining, reset)
	fmt.Fprintf(r.w, "%s✦ content maps:%s dropped:%s%s%s\n",
		purple, reset, white, list(res.DroppedMaps), reset)
}

func list(ids []string) string {
	if len(ids) == 0 {
		return "--"
	}
	return strings.Join(ids, ",")
}
