package probe

import (
	"log"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Host sends ICMP pings to the target and returns true if reachable. Used
// to tell "provider host down" apart from "provider changed its markup"
// when a refresh cycle fails.
func Host(target string) bool {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		log.Printf("[probe] failed to create pinger for %s: %v", target, err)
		return false
	}
	pinger.Count = 3
	pinger.Timeout = 5 * time.Second
	pinger.SetPrivileged(true)
	if err := pinger.Run(); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
