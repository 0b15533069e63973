package daemon

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// SetSocketPermissions applies mode and, if owner/group are non-empty,
// chowns filename to them.
func SetSocketPermissions(filename string, mode os.FileMode, owner, group string) error {
	if err := os.Chmod(filename, mode); err != nil {
		return err
	}
	if owner == "" && group == "" {
		return nil
	}

	uid, gid := -1, -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return fmt.Errorf("looking up socket owner %q: %w", owner, err)
		}
		uid, err = strconv.Atoi(u.Uid)
		if err != nil {
			return fmt.Errorf("parsing uid for %q: %w", owner, err)
		}
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return fmt.Errorf("looking up socket group %q: %w", group, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("parsing gid for %q: %w", group, err)
		}
	}
	return os.Chown(filename, uid, gid)
}
