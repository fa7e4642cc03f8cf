package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/portal/internal/cli/ui"
	"github.com/conduit-lang/portal/internal/store"
	"github.com/conduit-lang/portal/internal/validate"
	"github.com/conduit-lang/portal/internal/web/auth"
)

var validRoles = []string{auth.RoleAdmin, auth.RoleStaff, auth.RoleClient}

type userCreateOptions struct {
	tenant   string
	email    string
	name     string
	password string
	roles    string
	noInput  bool
}

// NewUserCommand creates the user command
func NewUserCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage portal accounts",
	}

	cmd.AddCommand(newUserCreateCommand(opts))

	return cmd
}

func newUserCreateCommand(opts *globalOptions) *cobra.Command {
	uo := &userCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff, admin or client account",
		Long: `Create an account for one tenant.

Missing values are prompted for interactively unless --no-input is set.`,
		Example: `  portal user create --tenant studio --email ada@studio.test --roles staff,admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			known := cfg.TenantNames()
			slugs := make([]string, 0, len(known))
			for _, t := range cfg.Tenants {
				slugs = append(slugs, t.Slug)
			}

			if err := uo.complete(slugs); err != nil {
				return err
			}
			if _, ok := known[uo.tenant]; !ok {
				ui.UnknownTenantError(uo.tenant, slugs, color.NoColor).Write(cmd.ErrOrStderr())
				return fmt.Errorf("unknown tenant %q", uo.tenant)
			}
			roles, err := parseRoles(uo.roles)
			if err != nil {
				return err
			}
			if err := validateUser(newUser{Email: uo.email, Password: uo.password, Roles: roles}); err != nil {
				return err
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.SeedTenants(cmd.Context(), db, known); err != nil {
				return err
			}

			user, err := auth.NewUserStore(db).Create(cmd.Context(), uo.tenant, uo.email, uo.name, uo.password, roles)
			if err != nil {
				if errors.Is(err, store.ErrUniqueViolation) {
					return fmt.Errorf("a user with email %s already exists in %s", uo.email, uo.tenant)
				}
				return err
			}

			out := cmd.OutOrStdout()
			ui.WriteSuccess(out, "User created", color.NoColor)
			kv := ui.NewKeyValueTable(out, color.NoColor)
			kv.AddRow("id", user.ID.String())
			kv.AddRow("tenant", user.TenantID)
			kv.AddRow("email", user.Email)
			kv.AddRow("roles", strings.Join(user.Roles, ", "))
			kv.Render()
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&uo.tenant, "tenant", "", "tenant slug")
	flags.StringVar(&uo.email, "email", "", "login email")
	flags.StringVar(&uo.name, "name", "", "display name")
	flags.StringVar(&uo.password, "password", "", "password (prompted when omitted)")
	flags.StringVar(&uo.roles, "roles", "", "comma-separated roles: admin, staff, client")
	flags.BoolVar(&uo.noInput, "no-input", false, "fail instead of prompting for missing values")

	return cmd
}

// complete fills missing options from interactive prompts
func (o *userCreateOptions) complete(tenants []string) error {
	if o.noInput {
		var missing []string
		for flag, v := range map[string]string{"tenant": o.tenant, "email": o.email, "password": o.password, "roles": o.roles} {
			if v == "" {
				missing = append(missing, "--"+flag)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
		}
		return nil
	}

	var qs []*survey.Question
	if o.tenant == "" {
		qs = append(qs, &survey.Question{
			Name:     "tenant",
			Prompt:   &survey.Select{Message: "Tenant:", Options: tenants},
			Validate: survey.Required,
		})
	}
	if o.email == "" {
		qs = append(qs, &survey.Question{
			Name:      "email",
			Prompt:    &survey.Input{Message: "Email:"},
			Validate:  survey.Required,
			Transform: survey.TransformString(strings.TrimSpace),
		})
	}
	if o.name == "" {
		qs = append(qs, &survey.Question{
			Name:   "name",
			Prompt: &survey.Input{Message: "Name:"},
		})
	}
	if o.password == "" {
		qs = append(qs, &survey.Question{
			Name:     "password",
			Prompt:   &survey.Password{Message: "Password:"},
			Validate: survey.ComposeValidators(survey.Required, survey.MinLength(8), survey.MaxLength(72)),
		})
	}

	answers := struct {
		Tenant   string
		Email    string
		Name     string
		Password string
	}{}
	if len(qs) > 0 {
		if err := survey.Ask(qs, &answers); err != nil {
			return err
		}
	}
	if answers.Tenant != "" {
		o.tenant = answers.Tenant
	}
	if answers.Email != "" {
		o.email = answers.Email
	}
	if answers.Name != "" {
		o.name = answers.Name
	}
	if answers.Password != "" {
		o.password = answers.Password
	}

	if o.roles == "" {
		var picked []string
		prompt := &survey.MultiSelect{
			Message: "Roles:",
			Options: validRoles,
			Default: []string{auth.RoleStaff},
		}
		if err := survey.AskOne(prompt, &picked, survey.WithValidator(survey.MinItems(1))); err != nil {
			return err
		}
		o.roles = strings.Join(picked, ",")
	}

	return nil
}

// parseRoles splits a comma-separated role list, dropping duplicates
func parseRoles(s string) ([]string, error) {
	var roles []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		role := strings.ToLower(strings.TrimSpace(part))
		if role == "" {
			continue
		}
		if !isValidRole(role) {
			return nil, fmt.Errorf("unknown role %q (valid: %s)", role, strings.Join(validRoles, ", "))
		}
		if seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, errors.New("at least one role is required")
	}
	return roles, nil
}

func isValidRole(role string) bool {
	for _, r := range validRoles {
		if r == role {
			return true
		}
	}
	return false
}

// newUser is the validated input of user create
type newUser struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8,max=72"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,oneof=admin staff client"`
}

// validateUser checks the account fields and flattens field errors into one message
func validateUser(u newUser) error {
	err := validate.Struct(u)
	if err == nil {
		return nil
	}

	var verr *validate.Error
	if !errors.As(err, &verr) {
		return err
	}
	fields := make([]string, 0, len(verr.Fields))
	for field := range verr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, field+" "+strings.Join(verr.Fields[field], ", "))
	}
	return errors.New(strings.Join(msgs, "; "))
}
