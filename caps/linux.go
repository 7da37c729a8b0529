// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package caps

import (
	"fmt"
	"strconv"
	"strings"
)

// LinuxUniverseSize is CAP_LAST_CAP+1 for the capabilities in linux/capability.h.
const LinuxUniverseSize = 41

var linuxNames = [LinuxUniverseSize]string{
	"CAP_CHOWN",
	"CAP_DAC_OVERRIDE",
	"CAP_DAC_READ_SEARCH",
	"CAP_FOWNER",
	"CAP_FSETID",
	"CAP_KILL",
	"CAP_SETGID",
	"CAP_SETUID",
	"CAP_SETPCAP",
	"CAP_LINUX_IMMUTABLE",
	"CAP_NET_BIND_SERVICE",
	"CAP_NET_BROADCAST",
	"CAP_NET_ADMIN",
	"CAP_NET_RAW",
	"CAP_IPC_LOCK",
	"CAP_IPC_OWNER",
	"CAP_SYS_MODULE",
	"CAP_SYS_RAWIO",
	"CAP_SYS_CHROOT",
	"CAP_SYS_PTRACE",
	"CAP_SYS_PACCT",
	"CAP_SYS_ADMIN",
	"CAP_SYS_BOOT",
	"CAP_SYS_NICE",
	"CAP_SYS_RESOURCE",
	"CAP_SYS_TIME",
	"CAP_SYS_TTY_CONFIG",
	"CAP_MKNOD",
	"CAP_LEASE",
	"CAP_AUDIT_WRITE",
	"CAP_AUDIT_CONTROL",
	"CAP_SETFCAP",
	"CAP_MAC_OVERRIDE",
	"CAP_MAC_ADMIN",
	"CAP_SYSLOG",
	"CAP_WAKE_ALARM",
	"CAP_BLOCK_SUSPEND",
	"CAP_AUDIT_READ",
	"CAP_PERFMON",
	"CAP_BPF",
	"CAP_CHECKPOINT_RESTORE",
}

var linuxValues = func() map[string]Capability {
	m := make(map[string]Capability, len(linuxNames))
	for i, n := range linuxNames {
		m[n] = Capability(i)
	}
	return m
}()

// Name returns the Linux name of c, e.g. "CAP_SETUID".  Capabilities without
// a known name are formatted as "CAP_<n>".
func Name(c Capability) string {
	if int(c) < len(linuxNames) {
		return linuxNames[c]
	}
	return "CAP_" + strconv.FormatUint(uint64(c), 10)
}

// Parse resolves a capability given by Linux name ("CAP_SETUID", "setuid")
// or decimal index.
func Parse(s string) (Capability, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "CAP_") {
		if n, err := strconv.ParseUint(name, 10, 32); err == nil {
			return Capability(n), nil
		}
		name = "CAP_" + name
	}
	if c, ok := linuxValues[name]; ok {
		return c, nil
	}
	if n, err := strconv.ParseUint(strings.TrimPrefix(name, "CAP_"), 10, 32); err == nil {
		return Capability(n), nil
	}
	return 0, fmt.Errorf("unknown capability %q", s)
}
