package detector

import (
	"fmt"
	"strings"
)

// String returns a human-readable representation of the cycle, e.g.
// "[0->1->2->0] profit=2.4604%".
func (c *Cycle) String() string {
	if len(c.Path) == 0 {
		return "empty cycle"
	}
	parts := make([]string, len(c.Path)+1)
	for i, e := range c.Path {
		parts[i] = fmt.Sprintf("%d", e.From)
	}
	parts[len(c.Path)] = fmt.Sprintf("%d", c.Path[len(c.Path)-1].To)
	return fmt.Sprintf("[%s] profit=%.4f%%", strings.Join(parts, "->"), (c.ProfitFactor()-1)*100)
}

// Nodes returns the ordered node walk of the cycle, including the repeated
// closing node (path[0].From == Nodes()[last]).
func (c *Cycle) Nodes() []int {
	if len(c.Path) == 0 {
		return nil
	}
	nodes := make([]int, len(c.Path)+1)
	for i, e := range c.Path {
		nodes[i] = e.From
	}
	nodes[len(c.Path)] = c.Path[len(c.Path)-1].To
	return nodes
}
