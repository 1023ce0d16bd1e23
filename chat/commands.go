package chat

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/YasiruR/mule-sync/domain/models"
	"github.com/YasiruR/mule-sync/domain/services"
)

const (
	commandPrefix = `/`
	defaultLimit  = 10
	mb            = 1024 * 1024
)

type command struct {
	usage       string
	description string
	exec        func(args []string) string
}

// Commands answers the slash commands typed into a chat locally without
// sending anything to the network
type Commands struct {
	catalog  services.Catalog
	dir      services.Discoverer
	merger   services.Merger
	commands map[string]command
}

func NewCommands(catalog services.Catalog, dir services.Discoverer, merger services.Merger) *Commands {
	c := &Commands{catalog: catalog, dir: dir, merger: merger}
	c.commands = map[string]command{
		`help`:   {usage: `/help`, description: `list available commands`, exec: c.help},
		`search`: {usage: `/search <query>`, description: `search the network catalog`, exec: c.search},
		`list`:   {usage: `/list [limit]`, description: `list the merged network catalog`, exec: c.list},
		`peers`:  {usage: `/peers`, description: `list relays and peers seen recently`, exec: c.peers},
		`status`: {usage: `/status`, description: `show local sharing status`, exec: c.status},
	}
	return c
}

// Process runs text as a command. Text that is not a command is not
// handled and should be sent as a message.
func (c *Commands) Process(text string) (response string, handled bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, commandPrefix) {
		return ``, false
	}

	parts := strings.Fields(strings.TrimPrefix(text, commandPrefix))
	if len(parts) == 0 {
		return fmt.Sprintf(`unknown command "%s", type /help for the list`, text), true
	}

	name := strings.ToLower(parts[0])
	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Sprintf(`unknown command "/%s", type /help for the list`, name), true
	}

	return cmd.exec(parts[1:]), true
}

func (c *Commands) help([]string) string {
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("available commands:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "  %-16s %s\n", c.commands[n].usage, c.commands[n].description)
	}
	return b.String()
}

func (c *Commands) search(args []string) string {
	if len(args) == 0 {
		return `usage: /search <query>`
	}

	query := strings.Join(args, ` `)
	res := c.catalog.Search(query)
	if len(res) == 0 {
		return fmt.Sprintf(`no results found for "%s"`, query)
	}

	return entries(fmt.Sprintf(`results for "%s"`, query), res, defaultLimit)
}

func (c *Commands) list(args []string) string {
	limit := defaultLimit
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	view := c.merger.View()
	if len(view) == 0 {
		return `no items found on the network`
	}

	return entries(fmt.Sprintf(`network catalog (%d items)`, len(view)), view, limit)
}

func (c *Commands) peers([]string) string {
	relays, peers := c.dir.Relays(), c.dir.Peers()
	if len(relays) == 0 && len(peers) == 0 {
		return `no relays or peers seen recently`
	}

	var b strings.Builder
	fmt.Fprintf(&b, "relays (%d):", len(relays))
	for _, r := range relays {
		fmt.Fprintf(&b, "\n  %s %s [%d items]", label(r), r.Endpoint, r.ItemCount)
	}
	fmt.Fprintf(&b, "\npeers (%d):", len(peers))
	for _, p := range peers {
		fmt.Fprintf(&b, "\n  %s [%d items]", label(p), p.ItemCount)
	}
	return b.String()
}

func (c *Commands) status([]string) string {
	return fmt.Sprintf("status:\n  shared items: %d\n  network items: %d\n  relays: %d\n  peers: %d",
		len(c.catalog.LocalEntries()), len(c.catalog.NetworkEntries()), len(c.dir.Relays()), len(c.dir.Peers()))
}

func entries(title string, list []models.CatalogEntry, limit int) string {
	var b strings.Builder
	b.WriteString(title)
	for i, e := range list {
		if i == limit {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s (%.2f MB)", i+1, e.Name, float64(e.Size)/mb)
	}
	return b.String()
}

func label(r models.PeerRecord) string {
	if r.Alias != `` {
		return r.Alias
	}
	return r.PublicKey
}
