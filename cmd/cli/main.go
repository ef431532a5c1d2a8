package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	c := newClient(getAPIURL(), loadToken())
	if err := run(c, os.Stdout, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func run(c *client, out io.Writer, command string, args []string) error {
	switch command {
	case "auth":
		return handleAuth(c, out, args)
	case "notes":
		return handleNotes(c, out, args)
	case "tags":
		return handleTags(c, out, args)
	case "help":
		printUsage(out)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func handleAuth(c *client, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: zennotes auth <register|login|logout|who>")
	}

	switch args[0] {
	case "register":
		return authenticate(c, out, "/auth/register", args[1:])
	case "login":
		return authenticate(c, out, "/auth/login", args[1:])
	case "logout":
		return logoutUser(c, out)
	case "who":
		return whoAmI(c, out)
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func handleNotes(c *client, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: zennotes notes <list|create|show|archive|unarchive|delete|tag|untag|stats>")
	}

	rest := args[1:]
	switch args[0] {
	case "list":
		return listNotes(c, out, rest)
	case "create":
		return createNote(c, out, rest)
	case "show":
		return showNote(c, out, rest)
	case "archive":
		return noteAction(c, out, rest, http.MethodPost, "/archive", "archived")
	case "unarchive":
		return noteAction(c, out, rest, http.MethodPost, "/unarchive", "restored")
	case "delete":
		return deleteNote(c, out, rest)
	case "tag":
		return noteTagAction(c, out, rest, http.MethodPost, "tagged")
	case "untag":
		return noteTagAction(c, out, rest, http.MethodDelete, "untagged")
	case "stats":
		return noteStatsCmd(c, out)
	default:
		return fmt.Errorf("unknown notes command: %s", args[0])
	}
}

func handleTags(c *client, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: zennotes tags <list|create|delete|colors>")
	}

	rest := args[1:]
	switch args[0] {
	case "list":
		return listTags(c, out, rest)
	case "create":
		return createTag(c, out, rest)
	case "delete":
		return deleteTag(c, out, rest)
	case "colors":
		return listColors(c, out)
	default:
		return fmt.Errorf("unknown tags command: %s", args[0])
	}
}

// Auth commands
func authenticate(c *client, out io.Writer, path string, args []string) error {
	fs := flag.NewFlagSet(strings.TrimPrefix(path, "/auth/"), flag.ContinueOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("username and password are required")
	}

	var result authResult
	payload := map[string]string{"username": *username, "password": *password}
	if err := c.do(http.MethodPost, path, payload, &result); err != nil {
		return err
	}
	if err := saveToken(result.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	c.token = result.Token

	fmt.Fprintf(out, "✓ Logged in as: %s\n", result.User.Username)
	return nil
}

func logoutUser(c *client, out io.Writer) error {
	if c.token != "" {
		// Tokens are stateless; a failed call still ends the local session.
		_ = c.do(http.MethodPost, "/auth/logout", nil, nil)
	}
	if err := os.Remove(tokenFile()); err != nil && !os.IsNotExist(err) {
		return err
	}
	c.token = ""
	fmt.Fprintln(out, "✓ Logged out")
	return nil
}

func whoAmI(c *client, out io.Writer) error {
	if c.token == "" {
		fmt.Fprintln(out, "Not logged in")
		return nil
	}

	var profile user
	if err := c.do(http.MethodGet, "/auth/profile", nil, &profile); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Logged in as %s (member since %s)\n", profile.Username, profile.CreatedAt.Format("2006-01-02"))
	return nil
}

// Note commands
func listNotes(c *client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	search := fs.String("search", "", "match title or content")
	tagID := fs.String("tag", "", "only notes with this tag id")
	archived := fs.String("archived", "false", "false, true or all")
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 10, "notes per page (max 50)")
	sortBy := fs.String("sort", "updatedAt", "title, createdAt or updatedAt")
	order := fs.String("order", "desc", "asc or desc")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(*page))
	q.Set("limit", strconv.Itoa(*limit))
	q.Set("archived", *archived)
	q.Set("sortBy", *sortBy)
	q.Set("sortOrder", *order)
	if *search != "" {
		q.Set("search", *search)
	}
	if *tagID != "" {
		q.Set("tagId", *tagID)
	}

	var result notePage
	if err := c.do(http.MethodGet, "/notes?"+q.Encode(), nil, &result); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTAGS\tARCHIVED\tUPDATED")
	for _, n := range result.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", n.ID, n.Title, tagNames(n.Tags), n.Archived, n.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	if p := result.Pagination; p != nil {
		fmt.Fprintf(out, "page %d/%d, %d notes\n", p.Page, p.TotalPages, p.Total)
	}
	return nil
}

func createNote(c *client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	title := fs.String("title", "", "note title")
	content := fs.String("content", "", "note content")
	tags := fs.String("tags", "", "comma separated tag ids (max 4)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" {
		fs.PrintDefaults()
		return fmt.Errorf("title is required")
	}

	tagIDs := []string{}
	for _, id := range strings.Split(*tags, ",") {
		if id = strings.TrimSpace(id); id != "" {
			tagIDs = append(tagIDs, id)
		}
	}

	var created note
	payload := map[string]any{"title": *title, "content": *content, "tagIds": tagIDs}
	if err := c.do(http.MethodPost, "/notes", payload, &created); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Note created: %s\n", created.ID)
	return nil
}

func showNote(c *client, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: zennotes notes show <note-id>")
	}

	var n note
	if err := c.do(http.MethodGet, "/notes/"+url.PathEscape(args[0]), nil, &n); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n\n%s\n\n", n.Title, n.Content)
	fmt.Fprintf(out, "tags:     %s\n", tagNames(n.Tags))
	fmt.Fprintf(out, "archived: %t\n", n.Archived)
	fmt.Fprintf(out, "created:  %s\n", n.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "updated:  %s\n", n.UpdatedAt.Format("2006-01-02 15:04"))
	return nil
}

func noteAction(c *client, out io.Writer, args []string, method, suffix, verb string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: zennotes notes %s <note-id>", strings.TrimPrefix(suffix, "/"))
	}

	var n note
	if err := c.do(method, "/notes/"+url.PathEscape(args[0])+suffix, nil, &n); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Note %s: %s\n", verb, n.Title)
	return nil
}

func deleteNote(c *client, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: zennotes notes delete <note-id>")
	}
	if err := c.do(http.MethodDelete, "/notes/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Note deleted")
	return nil
}

func noteTagAction(c *client, out io.Writer, args []string, method, verb string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: zennotes notes tag|untag <note-id> <tag-id>")
	}

	var n note
	path := "/notes/" + url.PathEscape(args[0]) + "/tags/" + url.PathEscape(args[1])
	if err := c.do(method, path, nil, &n); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Note %s: %s [%s]\n", verb, n.Title, tagNames(n.Tags))
	return nil
}

func noteStatsCmd(c *client, out io.Writer) error {
	var s noteStats
	if err := c.do(http.MethodGet, "/notes/stats", nil, &s); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "total\t%d\n", s.Total)
	fmt.Fprintf(w, "active\t%d\n", s.Active)
	fmt.Fprintf(w, "archived\t%d\n", s.Archived)
	fmt.Fprintf(w, "with tags\t%d\n", s.WithTags)
	fmt.Fprintf(w, "without tags\t%d\n", s.WithoutTags)
	fmt.Fprintf(w, "last 7 days\t%d\n", s.RecentCount)
	return w.Flush()
}

// Tag commands
func listTags(c *client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	search := fs.String("search", "", "match tag name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "/tags"
	if *search != "" {
		path += "?" + url.Values{"search": {*search}}.Encode()
	}

	var result tagPage
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOLOR\tNOTES")
	for _, t := range result.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.ID, t.Name, t.Color, t.NoteCount)
	}
	return w.Flush()
}

func createTag(c *client, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "tag name (max 20 characters)")
	color := fs.String("color", "", "hex color such as #3B82F6")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		fs.PrintDefaults()
		return fmt.Errorf("name is required")
	}

	payload := map[string]string{"name": *name}
	if *color != "" {
		payload["color"] = *color
	}

	var created tag
	if err := c.do(http.MethodPost, "/tags", payload, &created); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Tag created: %s %s (%s)\n", created.Name, created.Color, created.ID)
	return nil
}

func deleteTag(c *client, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: zennotes tags delete <tag-id>")
	}
	if err := c.do(http.MethodDelete, "/tags/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Tag deleted")
	return nil
}

func listColors(c *client, out io.Writer) error {
	var colors []string
	if err := c.do(http.MethodGet, "/tags/colors", nil, &colors); err != nil {
		return err
	}
	for _, color := range colors {
		fmt.Fprintln(out, color)
	}
	return nil
}

func tagNames(tags []tag) string {
	if len(tags) == 0 {
		return "-"
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return strings.Join(names, ",")
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Zen Notes CLI

Usage:
  zennotes <command> [options]

Commands:
  auth   User authentication (register, login, logout, who)
  notes  Note operations (list, create, show, archive, unarchive, delete, tag, untag, stats)
  tags   Tag operations (list, create, delete, colors)
  help   Show this help message

Environment Variables:
  ZENNOTES_API    API endpoint (default: http://localhost:8080/api)

Examples:
  zennotes auth register -username alice -password secret1
  zennotes auth login -username alice -password secret1
  zennotes tags create -name Home -color "#112233"
  zennotes notes create -title Groceries -content milk -tags <tag-id>
  zennotes notes list -search milk
`)
}
