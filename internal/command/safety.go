package command

import "strings"

// denyList holds lowercase fragments that mark a command as unsafe.
// Matching is case-insensitive substring, not exact-token: multi-word
// phrases like "chmod 777" must be caught wherever they appear.
//
// The list is a configuration constant, grouped by the class of damage.
var denyList = []string{
	// Removal and formatting.
	"rm -rf",
	"rm -r",
	"rm -f",
	"rmdir",
	"mkfs",
	"fdisk",
	"format c:",
	"dd if=",
	"> /dev/sd",

	// Privilege escalation.
	"sudo",
	"su -",
	"su root",
	"passwd",

	// Permission and ownership changes.
	"chmod 777",
	"chmod -r",
	"chown",
	"chgrp",

	// Service and process control.
	"systemctl",
	"service ",
	"kill -9",
	"pkill",
	"killall",
	"shutdown",
	"reboot",
	"poweroff",
	"halt",
	"init 0",
	"init 6",

	// Firewall and network changes.
	"iptables",
	"ip6tables",
	"nft ",
	"ufw ",
	"firewall-cmd",

	// History and log erasure.
	"history -c",
	"> ~/.bash_history",
	"truncate -s 0 /var/log",

	// Secure-wipe utilities.
	"shred",
	"wipefs",
	"srm ",

	// Scheduler tampering.
	"crontab -r",
}

// IsSafeCommand reports whether parsed contains no deny-listed fragment.
// extraDenied entries (operator-configured) are checked the same way.
func IsSafeCommand(parsed string, extraDenied []string) bool {
	lowered := strings.ToLower(parsed)
	for _, frag := range denyList {
		if strings.Contains(lowered, frag) {
			return false
		}
	}
	for _, frag := range extraDenied {
		frag = strings.ToLower(strings.TrimSpace(frag))
		if frag != "" && strings.Contains(lowered, frag) {
			return false
		}
	}
	return true
}
