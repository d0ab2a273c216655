package controller

import (
	"strconv"
	"strings"
	"time"
)

// replacePercentDestination substitutes %a (addr), %n (name), and %t
// (unix seconds) into a fetch verb's local destination template, the
// controller-side counterpart to the agent's $K/% argument substitution
// (spec §4.6).
func replacePercentDestination(template, addr, name string) string {
	var out strings.Builder
	for i := 0; i < len(template); i++ {
		if template[i] != '%' || i == len(template)-1 {
			out.WriteByte(template[i])
			continue
		}
		switch template[i+1] {
		case 'a':
			out.WriteString(addr)
		case 'n':
			out.WriteString(name)
		case 't':
			out.WriteString(strconv.FormatInt(time.Now().Unix(), 10))
		case '%':
			out.WriteByte('%')
		default:
			out.WriteByte('%')
			out.WriteByte(template[i+1])
		}
		i++
	}
	return out.String()
}
