package safety

import "regexp"

// refusalPattern maps a command shape to an unconditional refusal. There is
// no user override for these: the gate denies them regardless of trust
// settings or --force.
type refusalPattern struct {
	pattern *regexp.Regexp
	message string
}

var refusalPatterns = []refusalPattern{
	{
		regexp.MustCompile(`(?i)\brm\s+(-[a-z]*[rf][a-z]*\s+)+(--no-preserve-root\s+)?("|')?(/|/boot|/etc|/bin|/sbin|/lib|/usr|/var|~)("|')?(\s|;|$)`),
		"Removing critical system directories is not allowed",
	},
	{
		regexp.MustCompile(`(?i)\b(mkfs(\.\w+)?|mke2fs|mkswap)\s+.*(/dev/sd[a-z]|/dev/nvme\d)`),
		"Formatting block devices is not allowed",
	},
	{
		regexp.MustCompile(`(?i)\b(shutdown|reboot|halt|poweroff)\b|\binit\s+[06]\b`),
		"System power commands are not allowed",
	},
	{
		regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]*R[a-z]*\s+)+777\b|\bchmod\s+777\s+(-[a-z]*R[a-z]*)\b`),
		"Recursive chmod 777 opens the filesystem to every user",
	},
	{
		regexp.MustCompile(`(?i)\b(ifconfig\s+\S+\s+down|ip\s+link\s+set\s+\S+\s+down|nmcli\s+(networking|device)\s+(off|disconnect))\b`),
		"Bringing network interfaces down is not allowed",
	},
	{
		regexp.MustCompile(`>\s*/etc/(passwd|shadow|sudoers)\b`),
		"Overwriting system credential files is not allowed",
	},
	{
		regexp.MustCompile(`(?i);\s*rm\s+(-[a-z]+\s+)*\S`),
		"Compound statement hides a removal after ';'",
	},
	{
		regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`),
		"Piping downloaded content into a shell is not allowed",
	},
	{
		regexp.MustCompile(`(?i)\b(dd|fallocate)\b.*\bif=/dev/zero\b|\bfallocate\s+-l\s+\S+\s+/`),
		"Disk-fill operations are not allowed",
	},
	{
		regexp.MustCompile(`(?i)\bfor\b.*\bdo\b.*\brm\s`),
		"Shell loops containing rm are not allowed",
	},
}

// privilegePatterns flag commands that need elevated privileges. When the
// current process is unprivileged and a command matches, the classifier
// refuses instead of letting the command fail halfway through.
var privilegePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(sudo|su|pkexec|doas)\b`),
	regexp.MustCompile(`(?i)\b(apt|apt-get|dnf|yum|pacman|zypper)\s+(install|remove|upgrade|purge)\b`),
	regexp.MustCompile(`(?i)\bsystemctl\s+(start|stop|restart|enable|disable|mask)\b`),
	regexp.MustCompile(`(?i)\b(mount|umount|modprobe|insmod|rmmod)\b`),
	regexp.MustCompile(`(?i)(>|>>|\btee\b)\s*/(etc|boot|usr|lib|sbin|bin)/`),
}

// Risk scoring tables. First match wins, checked from critical downward so
// a destructive command with a read-only prefix still scores high.
var criticalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-[a-z]*[rf][a-z]*\s*)+`),
	regexp.MustCompile(`(?i)\b(dd|shred|wipefs|badblocks)\b`),
	regexp.MustCompile(`(?i)\bmkfs\b|\bfdisk\b|\bparted\b`),
	regexp.MustCompile(`(?i)\b(find|xargs)\b.*\b(-delete|rm)\b`),
	regexp.MustCompile(`(?i)\bgit\s+push\s+(--force|-f)\b`),
}

var highPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(apt|apt-get|dnf|yum|pacman|brew|pip3?|npm|cargo|gem)\s+(install|uninstall|remove|upgrade)\b`),
	regexp.MustCompile(`(?i)\bsystemctl\b|\bservice\b|\bcrontab\b`),
	regexp.MustCompile(`(?i)\b(useradd|userdel|usermod|groupadd|passwd)\b`),
	regexp.MustCompile(`(?i)\b(chown|chmod)\s+(-[a-z]*R[a-z]*)\b`),
	regexp.MustCompile(`(?i)\biptables\b|\bufw\b|\bfirewall-cmd\b`),
	regexp.MustCompile(`(?i)(>|>>|\btee\b)\s*/etc/`),
}

var mediumPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(mv|cp)\s+.*\s`),
	regexp.MustCompile(`(?i)\brm\s`),
	regexp.MustCompile(`(?i)\b(sed|awk|perl)\s+-i`),
	regexp.MustCompile(`(?i)(>|>>)\s*\S`),
	regexp.MustCompile(`(?i)\bgit\s+(reset|checkout|clean|rebase|stash)\b`),
	regexp.MustCompile(`(?i)\b(chmod|chown|ln)\b`),
	regexp.MustCompile(`(?i)\btruncate\b`),
}

var lowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(mkdir|touch)\b`),
	regexp.MustCompile(`(?i)\bgit\s+(init|add|commit|branch|tag|fetch|pull|clone)\b`),
	regexp.MustCompile(`(?i)^\s*(tar|zip|unzip|gzip|gunzip)\b`),
	regexp.MustCompile(`(?i)^\s*(curl|wget)\b`),
	regexp.MustCompile(`(?i)^\s*(go|make|npm|cargo|mvn|gradle)\s+(build|test|run|vet|fmt)\b`),
}

// safeCommands are read-only introspection commands. Matching is on the
// first token only so "ls; rm -rf x" cannot hide behind it.
var safeCommands = map[string]bool{
	"ls": true, "ll": true, "dir": true, "pwd": true, "whoami": true,
	"id": true, "date": true, "cal": true, "uptime": true, "uname": true,
	"hostname": true, "echo": true, "printf": true, "cat": true,
	"head": true, "tail": true, "wc": true, "grep": true, "rg": true,
	"find": true, "which": true, "whereis": true, "type": true,
	"file": true, "stat": true, "du": true, "df": true, "free": true,
	"ps": true, "env": true, "printenv": true, "history": true,
	"man": true, "help": true, "tree": true, "basename": true,
	"dirname": true, "realpath": true, "readlink": true, "sort": true,
	"uniq": true, "cut": true, "diff": true, "cmp": true, "md5sum": true,
	"sha256sum": true, "ip": true, "ifconfig": true, "netstat": true,
	"ss": true, "lsof": true, "git": true, "go": true,
}
