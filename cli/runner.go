package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/YasiruR/mule-sync/domain/container"
	"github.com/YasiruR/mule-sync/domain/models"
)

type runner struct {
	c       *container.Container
	reader  *bufio.Reader
	disCmds uint64 // flag to identify whether output cursor is on basic commands or not
}

func ParseArgs() *container.Args {
	alias := flag.String(`alias`, ``, `alias to sign in with when no key file is available`)
	keyFile := flag.String(`keys`, ``, `file to recall the session from and save it to`)
	storePort := flag.Int(`port`, 0, `port of the graph replication endpoint (0 disables replication)`)
	host := flag.String(`host`, `127.0.0.1`, `host advertised for the replication endpoint`)
	relayPort := flag.Int(`relay`, 0, `port to serve this node's catalog on (0 disables the endpoint)`)
	publicURL := flag.String(`public`, ``, `public url of the catalog endpoint announced on the relay directory`)
	peers := flag.String(`peers`, ``, `comma separated list of additional store peers`)
	noDefault := flag.Bool(`no-default-peers`, false, `do not add the default relay peers`)
	verbose := flag.Bool(`v`, false, `logging`)
	level := flag.String(`log`, `DEBUG`, `log level`)
	flag.Parse()

	var ps []string
	for _, p := range strings.Split(*peers, `,`) {
		if p = strings.TrimSpace(p); p != `` {
			ps = append(ps, p)
		}
	}

	return &container.Args{
		Alias:     *alias,
		KeyFile:   *keyFile,
		StorePort: *storePort,
		Host:      *host,
		RelayPort: *relayPort,
		PublicURL: *publicURL,
		Peers:     ps,
		NoDefault: *noDefault,
		Verbose:   *verbose,
		LogLevel:  *level,
	}
}

func Init(c *container.Container) {
	id, _ := c.Identity.Current()
	fmt.Printf("-> Node initialized with following attributes: \n\t- Alias: %s\n\t- Public key: %s\n\t- Store endpoint: %s\n", id.Alias, id.PublicKey, c.Cfg.StoreEndpoint)

	r := runner{c: c, reader: bufio.NewReader(os.Stdin)}
	c.Catalog.SubscribeToNetwork(func(entries []models.CatalogEntry) {
		r.output(fmt.Sprintf(`network catalog updated (%d items)`, len(entries)))
	})
	c.Chat.SubscribeToLobby(func(msgs []models.LobbyMessage) {
		if len(msgs) == 0 {
			return
		}
		m := msgs[len(msgs)-1]
		r.output(fmt.Sprintf(`[lobby] %s: %s`, m.Alias, m.Text))
	})
	c.Discoverer.StartDiscovery()

	r.basicCommands()
}

func (r *runner) basicCommands() {
	for {
		fmt.Printf("\n-> Enter the corresponding number of a command to proceed;\n\t[1] Publish an item\n\t[2] Unpublish an item\n\t[3] Search the network\n\t[4] Pull relay catalogs\n\t[5] List relays and peers\n\t[6] Talk on the lobby\n\t[7] Open a private chat\n\t[8] Exit\n   Command: ")
		atomic.StoreUint64(&r.disCmds, 1)

		cmd, err := r.reader.ReadString('\n')
		if err != nil {
			fmt.Println("   Error: reading command number failed, please try again")
			continue
		}
		atomic.StoreUint64(&r.disCmds, 0)

		switch strings.TrimSpace(cmd) {
		case "1":
			r.publish()
		case "2":
			r.unpublish()
		case "3":
			r.search()
		case "4":
			r.merge()
		case "5":
			r.peers()
		case "6":
			r.lobby()
		case "7":
			r.privateChat()
		case "8":
			if err = r.c.Stop(); err != nil {
				fmt.Printf("   Error: %v\n", err)
			}
			os.Exit(0)
		default:
			fmt.Println("   Error: invalid command number, please try again")
		}
	}
}

func (r *runner) publish() {
	infoHash := r.input(`Info hash`)
	name := r.input(`Name`)
	magnet := r.input(`Magnet URI`)
	size, err := strconv.ParseInt(r.input(`Size (bytes)`), 10, 64)
	if err != nil {
		size = 0
	}
	files, err := strconv.Atoi(r.input(`File count`))
	if err != nil {
		files = 1
	}

	entry := models.CatalogEntry{InfoHash: infoHash, Name: name, MagnetURI: magnet, Size: size, Files: files}
	if err = r.c.Catalog.Publish(entry); err != nil {
		fmt.Printf("   Error: publishing failed - %v\n", err)
		return
	}
	fmt.Printf("-> Published %s\n", name)
}

func (r *runner) unpublish() {
	for i, e := range r.c.Catalog.LocalEntries() {
		fmt.Printf("\t[%d] %s (%s)\n", i+1, e.Name, e.InfoHash)
	}

	if err := r.c.Catalog.Unpublish(r.input(`Info hash`)); err != nil {
		fmt.Printf("   Error: unpublishing failed - %v\n", err)
		return
	}
	fmt.Println("-> Unpublished")
}

func (r *runner) search() {
	res := r.c.Catalog.Search(r.input(`Query`))
	if len(res) == 0 {
		fmt.Println("-> No results")
		return
	}
	printEntries(res)
}

func (r *runner) merge() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*r.c.Cfg.PullTimeout)
	defer cancel()
	view := r.c.Merger.Merge(ctx)
	fmt.Printf("-> Merged catalog contains %d items\n", len(view))
	printEntries(view)
}

func (r *runner) peers() {
	res, _ := r.c.Commands.Process(`/peers`)
	fmt.Println(res)
}

// lobby reads lines until an empty one. Lines starting with a slash are
// answered locally.
func (r *runner) lobby() {
	fmt.Println("-> Type messages for the lobby, an empty line returns to the menu")
	for {
		text := r.input(`lobby`)
		if text == `` {
			return
		}

		if res, ok := r.c.Commands.Process(text); ok {
			fmt.Println(res)
			continue
		}

		if err := r.c.Chat.SendLobbyMessage(text); err != nil {
			fmt.Printf("   Error: sending failed - %v\n", err)
		}
	}
}

func (r *runner) privateChat() {
	for i, c := range r.c.Discoverer.AllContacts() {
		fmt.Printf("\t[%d] %s %s\n", i+1, c.Alias, c.PublicKey)
	}

	other := r.input(`Public key`)
	if other == `` {
		return
	}

	for _, m := range r.c.Chat.Messages(other) {
		fmt.Printf("   %s: %s\n", m.FromAlias, m.Content)
	}

	seen := len(r.c.Chat.Messages(other))
	cancel := r.c.Chat.SubscribeToChat(other, func(msgs []models.ChatMessage) {
		for _, m := range msgs[min(seen, len(msgs)):] {
			r.output(fmt.Sprintf(`[%s] %s`, m.FromAlias, m.Content))
		}
		seen = len(msgs)
	})
	defer cancel()

	fmt.Println("-> Type messages, an empty line returns to the menu")
	for {
		text := r.input(`message`)
		if text == `` {
			return
		}

		if _, err := r.c.Chat.SendMessage(context.Background(), other, text); err != nil {
			fmt.Printf("   Error: sending failed - %v\n", err)
		}
	}
}

func (r *runner) input(label string) string {
	fmt.Printf("   %s: ", label)
	text, err := r.reader.ReadString('\n')
	if err != nil {
		return ``
	}
	return strings.TrimSpace(text)
}

func (r *runner) output(text string) {
	if atomic.LoadUint64(&r.disCmds) == 1 {
		fmt.Printf("\n-> %s\n   Command: ", text)
		return
	}
	fmt.Printf("\n-> %s\n", text)
}

func printEntries(entries []models.CatalogEntry) {
	for i, e := range entries {
		src := e.SharedByAlias
		if src == `` {
			src = e.SharedBy
		}
		fmt.Printf("\t[%d] %s (%d bytes, %d files) by %s\n\t    %s\n", i+1, e.Name, e.Size, e.Files, src, e.MagnetURI)
	}
}
