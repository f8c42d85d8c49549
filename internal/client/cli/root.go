package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pinvault/pinvault/internal/common"
	"github.com/pinvault/pinvault/internal/vault/lockout"
	"github.com/pinvault/pinvault/internal/vault/models"
)

const helpText = `Commands:
  status            show vault and session state
  init              create a new vault (prints the recovery phrase once)
  unlock            unlock with the recovery phrase
  pin               quick unlock with the PIN
  setpin            set up a PIN for quick unlock
  changepin         change the PIN
  list              list credential entries
  add               add a credential entry
  show <n>          reveal the secret of entry n
  edit <n>          edit entry n
  rm <n>            delete entry n
  timeout <min>     set idle auto-lock minutes (0 disables)
  backup            back up the encrypted vault off-device
  restore <key>     restore a backup by object key
  lock              lock the session
  logout            log out and destroy the PIN token
  help              this text
  exit              quit`

// Root runs the command loop until exit or EOF.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "pinvault - type 'help' for commands")

	for {
		line, err := GetSimpleText(a.reader, "", a.out)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(a.out, "error: %v\n", err)
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		if cmd == "exit" || cmd == "quit" {
			a.svc.Lock(ctx)
			return
		}
		a.dispatch(ctx, cmd, args)
	}
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string) {
	var err error
	switch cmd {
	case "help":
		fmt.Fprintln(a.out, helpText)
	case "status":
		err = a.cmdStatus(ctx)
	case "init":
		err = a.cmdInit(ctx)
	case "unlock":
		err = a.cmdUnlock(ctx)
	case "pin":
		err = a.cmdPinUnlock(ctx)
	case "setpin":
		err = a.cmdSetPin(ctx)
	case "changepin":
		err = a.cmdChangePin(ctx)
	case "list":
		err = a.cmdList(ctx)
	case "add":
		err = a.cmdAdd(ctx)
	case "show":
		err = a.cmdShow(ctx, args)
	case "edit":
		err = a.cmdEdit(ctx, args)
	case "rm":
		err = a.cmdDelete(ctx, args)
	case "timeout":
		err = a.cmdTimeout(ctx, args)
	case "backup":
		err = a.cmdBackup(ctx)
	case "restore":
		err = a.cmdRestore(ctx, args)
	case "lock":
		a.svc.Lock(ctx)
		fmt.Fprintln(a.out, "locked")
	case "logout":
		err = a.cmdLogout(ctx)
	default:
		fmt.Fprintf(a.out, "unknown command %q, type 'help'\n", cmd)
	}

	if err != nil {
		a.printError(err)
	}
}

func (a *App) printError(err error) {
	var lockErr *lockout.LockoutError
	switch {
	case errors.As(err, &lockErr):
		fmt.Fprintf(a.out, "too many attempts, retry in %ds\n", int(lockErr.Remaining.Seconds()))
	case errors.Is(err, common.ErrRootSecretRequired):
		fmt.Fprintln(a.out, "quick unlock disabled, enter the recovery phrase with 'unlock'")
	case errors.Is(err, common.ErrSessionLocked):
		fmt.Fprintln(a.out, "vault is locked, use 'unlock' or 'pin'")
	default:
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
}

func (a *App) cmdStatus(ctx context.Context) error {
	exists, err := a.svc.Exists(ctx)
	if err != nil {
		return err
	}
	hasToken, err := a.svc.HasUnlockToken(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "vault: %v\n", exists)
	fmt.Fprintf(a.out, "session: %s\n", a.svc.Session().State())
	fmt.Fprintf(a.out, "pin unlock: %v\n", hasToken)

	st, err := a.svc.Lockout().Check(ctx)
	if err != nil {
		return err
	}
	if st.Terminal {
		fmt.Fprintln(a.out, "lockout: recovery phrase required")
	} else if st.Locked {
		fmt.Fprintf(a.out, "lockout: %ds remaining\n", int(st.Remaining.Seconds()))
	}
	return nil
}

func (a *App) cmdInit(ctx context.Context) error {
	phrase, err := a.svc.CreateVault(ctx, a.config.TimeoutMinutes)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Vault created. Write down the recovery phrase, it will not be shown again:")
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "    %s\n", phrase)
	fmt.Fprintln(a.out)
	return nil
}

func (a *App) cmdUnlock(ctx context.Context) error {
	phrase, err := GetSecret("Recovery phrase", a.out)
	if err != nil {
		return err
	}
	defer common.Wipe(phrase)

	if err := a.svc.UnlockWithPhrase(ctx, strings.TrimSpace(string(phrase))); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "unlocked")
	return nil
}

func (a *App) cmdPinUnlock(ctx context.Context) error {
	pin, err := GetSecret("PIN", a.out)
	if err != nil {
		return err
	}
	defer common.Wipe(pin)

	if err := a.svc.UnlockWithPin(ctx, string(pin)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "unlocked")
	return nil
}

func (a *App) cmdSetPin(ctx context.Context) error {
	pin, err := GetSecret("New PIN (6 digits)", a.out)
	if err != nil {
		return err
	}
	defer common.Wipe(pin)

	confirm, err := GetSecret("Repeat PIN", a.out)
	if err != nil {
		return err
	}
	defer common.Wipe(confirm)

	if string(pin) != string(confirm) {
		return errors.New("pins do not match")
	}

	if err := a.svc.SetupPin(ctx, string(pin)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "pin set")
	return nil
}

func (a *App) cmdChangePin(ctx context.Context) error {
	oldPin, err := GetSecret("Current PIN", a.out)
	if err != nil {
		return err
	}
	defer common.Wipe(oldPin)

	newPin, err := GetSecret("New PIN (6 digits)", a.out)
	if err != nil {
		return err
	}
	defer common.Wipe(newPin)

	if err := a.svc.ChangePin(ctx, string(oldPin), string(newPin)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "pin changed")
	return nil
}

func (a *App) cmdList(ctx context.Context) error {
	entries, err := a.svc.ListEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "no entries")
		return nil
	}
	for n, e := range entries {
		fmt.Fprintf(a.out, "%3d  %-30s %-20s %s\n", n+1, e.Site, e.Login, e.Notes)
	}
	return nil
}

func (a *App) cmdAdd(ctx context.Context) error {
	site, err := GetSimpleText(a.reader, "Site", a.out)
	if err != nil {
		return err
	}
	login, err := GetSimpleText(a.reader, "Login", a.out)
	if err != nil {
		return err
	}
	secret, err := GetSecret("Secret", a.out)
	if err != nil {
		return err
	}
	defer common.Wipe(secret)
	notes, err := GetSimpleText(a.reader, "Notes", a.out)
	if err != nil {
		return err
	}

	if _, err := a.svc.AddEntry(ctx, site, login, string(secret), notes); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "added")
	return nil
}

// entryByIndex resolves a 1-based positional argument to an entry.
func (a *App) entryByIndex(ctx context.Context, args []string) (*models.CredentialEntry, error) {
	if len(args) != 1 {
		return nil, errors.New("expected an entry number, see 'list'")
	}

	entries, err := a.svc.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	var n int
	if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 1 || n > len(entries) {
		return nil, fmt.Errorf("no entry %q, see 'list'", args[0])
	}
	return &entries[n-1], nil
}

func (a *App) cmdShow(ctx context.Context, args []string) error {
	entry, err := a.entryByIndex(ctx, args)
	if err != nil {
		return err
	}

	secret, err := a.svc.RevealSecret(ctx, entry.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s / %s\n", entry.Site, entry.Login)
	fmt.Fprintf(a.out, "secret: %s\n", secret)
	fmt.Fprintln(a.out, "(press Enter to hide)")
	_, _ = a.reader.ReadString('\n')
	// Best effort: scroll the secret off the visible screen.
	fmt.Fprint(a.out, strings.Repeat("\n", 40))
	return nil
}

func (a *App) cmdEdit(ctx context.Context, args []string) error {
	entry, err := a.entryByIndex(ctx, args)
	if err != nil {
		return err
	}

	site, err := GetSimpleText(a.reader, fmt.Sprintf("Site [%s]", entry.Site), a.out)
	if err != nil {
		return err
	}
	if site == "" {
		site = entry.Site
	}
	login, err := GetSimpleText(a.reader, fmt.Sprintf("Login [%s]", entry.Login), a.out)
	if err != nil {
		return err
	}
	if login == "" {
		login = entry.Login
	}
	notes, err := GetSimpleText(a.reader, fmt.Sprintf("Notes [%s]", entry.Notes), a.out)
	if err != nil {
		return err
	}
	if notes == "" {
		notes = entry.Notes
	}

	change, err := GetSimpleText(a.reader, "Change secret? (y/N)", a.out)
	if err != nil {
		return err
	}

	edit := models.EntryEdit{Site: site, Login: login, Notes: notes}
	if strings.EqualFold(change, "y") {
		secret, err := GetSecret("New secret", a.out)
		if err != nil {
			return err
		}
		defer common.Wipe(secret)
		edit.Secret = string(secret)
		edit.SecretChanged = true
	}

	if err := a.svc.UpdateEntry(ctx, entry.ID, edit); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "updated")
	return nil
}

func (a *App) cmdDelete(ctx context.Context, args []string) error {
	entry, err := a.entryByIndex(ctx, args)
	if err != nil {
		return err
	}
	if err := a.svc.DeleteEntry(ctx, entry.ID); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "deleted")
	return nil
}

func (a *App) cmdTimeout(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("expected minutes, e.g. 'timeout 15'")
	}
	var minutes int
	if _, err := fmt.Sscanf(args[0], "%d", &minutes); err != nil || minutes < 0 {
		return fmt.Errorf("invalid minutes %q", args[0])
	}

	if err := a.svc.SetTimeout(ctx, minutes); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "timeout updated, applies from the next unlock")
	return nil
}

func (a *App) cmdBackup(ctx context.Context) error {
	key, err := a.svc.Backup(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "backed up as %s\n", key)
	return nil
}

func (a *App) cmdRestore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("expected an object key, e.g. 'restore vaults/2026/8/24/...'")
	}
	if err := a.svc.Restore(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "restored, unlock with the recovery phrase")
	return nil
}

func (a *App) cmdLogout(ctx context.Context) error {
	if err := a.svc.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out, pin token destroyed")
	return nil
}
