package router

import (
	"html"
	"strings"
)

// helpText renders the command list, or details for one command, in
// Telegram HTML.
func (r *Router) helpText(args []string, admin bool) string {
	cmds := r.commands()
	if len(args) > 0 {
		want := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		for _, c := range cmds {
			if (c.Admin && !admin) || (c.Name != want && !containsFold(c.Aliases, want)) {
				continue
			}
			lines := []string{"<b>/" + html.EscapeString(c.Name) + "</b>"}
			if c.Description != "" {
				lines = append(lines, html.EscapeString(c.Description))
			}
			if c.Usage != "" {
				lines = append(lines, "Usage: <code>"+html.EscapeString(c.Usage)+"</code>")
			}
			if len(c.Aliases) > 0 {
				lines = append(lines, "Aliases: "+html.EscapeString(strings.Join(c.Aliases, ", ")))
			}
			return strings.Join(lines, "\n")
		}
		return "Unknown command. Try <code>/help</code>."
	}

	lines := []string{"<b>Commands</b>"}
	var adminLines []string
	for _, c := range cmds {
		if c.Hidden {
			continue
		}
		line := "/" + html.EscapeString(c.Name)
		if c.Description != "" {
			line += " - " + html.EscapeString(c.Description)
		}
		if c.Admin {
			if admin {
				adminLines = append(adminLines, line)
			}
			continue
		}
		lines = append(lines, line)
	}
	if len(adminLines) > 0 {
		lines = append(lines, "", "<b>Admin</b>")
		lines = append(lines, adminLines...)
	}
	lines = append(lines, "", "Details: <code>/help &lt;command&gt;</code>")
	return strings.Join(lines, "\n")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
