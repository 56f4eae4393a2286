// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package runtimeEnv

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/atscope/modguard/pkg/mlog"
)

// DropPrivileges changes the process's user and group to those named,
// once startup (opening the auxiliary DB, connecting the sessions) is
// done. The go runtime takes care of all threads, not only the
// calling one, executing the underlying syscall.
func DropPrivileges(username string, group string) error {
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			mlog.Warnf("runtimeEnv: lookup group %s: %v", group, err)
			return err
		}

		gid, _ := strconv.Atoi(g.Gid)
		if err := syscall.Setgid(gid); err != nil {
			mlog.Warnf("runtimeEnv: setgid %d: %v", gid, err)
			return err
		}
	}

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			mlog.Warnf("runtimeEnv: lookup user %s: %v", username, err)
			return err
		}

		uid, _ := strconv.Atoi(u.Uid)
		if err := syscall.Setuid(uid); err != nil {
			mlog.Warnf("runtimeEnv: setuid %d: %v", uid, err)
			return err
		}
	}

	return nil
}

// SystemdNotifiy informs systemd of a readiness/status change when
// started under it:
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
func SystemdNotifiy(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}
	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	cmd.Run() // errors ignored on purpose, there is not much to do anyways.
}
