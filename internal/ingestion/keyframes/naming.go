package keyframes

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kept frames are named so downstream stages can reason about placement
// without reparsing anything: cut_{c}_frame_{n}_time_{ms}_diff_{score}.
func frameName(cutIndex, frameNumber, timestampMS int, diffScore float64, ext string) string {
	return fmt.Sprintf("cut_%d_frame_%d_time_%d_diff_%.2f%s", cutIndex, frameNumber, timestampMS, diffScore, ext)
}

var frameNamePattern = regexp.MustCompile(`^cut_(\d+)_frame_(\d+)_time_(\d+)_diff_([0-9]+(?:\.[0-9]+)?)\.(?:jpe?g|png)$`)

// ParseFrameName recovers the placement fields from a kept frame filename.
func ParseFrameName(name string) (cutIndex, frameNumber, timestampMS int, diffScore float64, err error) {
	m := frameNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, 0, 0, fmt.Errorf("not a keyframe name: %q", name)
	}
	cutIndex, _ = strconv.Atoi(m[1])
	frameNumber, _ = strconv.Atoi(m[2])
	timestampMS, _ = strconv.Atoi(m[3])
	diffScore, _ = strconv.ParseFloat(m[4], 64)
	return cutIndex, frameNumber, timestampMS, diffScore, nil
}
