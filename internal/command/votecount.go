package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wiki-tool/wiki-tool-go/internal/weights"
	"github.com/wiki-tool/wiki-tool-go/mwapi"
)

// DefaultRedirectRegex detects automatic redirect-creation edit comments,
// which do not count as new pages.
const DefaultRedirectRegex = `^Redirect to \[\[.+\]\]$`

// VoteCountOptions configures the vote power computation.
type VoteCountOptions struct {
	Weights       *weights.Table
	Start, End    *time.Time
	Format        string // "txt", "json" or "mediawiki"
	RedirectRegex string
	Limit         int
}

// UserVotes is the computed result for one user: per-namespace edit
// counts, created pages and the weighted vote power.
type UserVotes struct {
	User      string
	Edits     map[int]int
	NewPages  int
	VotePower float64
}

// VoteCount computes vote power for each user: the sum over namespaces
// of edit count times edit weight, plus created pages times page weight.
// The reduction is linear in the counts; namespaces without a weight
// contribute zero.
func VoteCount(ctx context.Context, api mwapi.API, log *logrus.Logger, out io.Writer, users []string, opts VoteCountOptions) error {
	pattern := opts.RedirectRegex
	if pattern == "" {
		pattern = DefaultRedirectRegex
	}
	redirect, err := compileAnchored(pattern)
	if err != nil {
		return fmt.Errorf("bad redirect expression: %w", err)
	}

	results := make([]UserVotes, 0, len(users))
	for _, user := range users {
		log.WithField("user", user).Info("processing user")
		votes, err := countUser(ctx, api, user, redirect, opts)
		if err != nil {
			return err
		}
		results = append(results, votes)
	}

	switch opts.Format {
	case "json":
		return renderVotesJSON(out, results)
	case "mediawiki":
		return renderVotesWikitable(out, results, opts.Weights)
	default:
		return renderVotesText(out, results, opts.Weights)
	}
}

func countUser(ctx context.Context, api mwapi.API, user string, redirect *regexp.Regexp, opts VoteCountOptions) (UserVotes, error) {
	votes := UserVotes{User: user, Edits: map[int]int{}}

	for _, ns := range opts.Weights.EditNamespaces() {
		edits := 0
		pages := 0
		pager := mwapi.UserContributions(api, user, ns, opts.Limit, opts.Start, opts.End)
		err := pager.Each(ctx, func(c mwapi.Contribution) error {
			edits++
			if c.New && !redirect.MatchString(c.Comment) {
				pages++
			}
			return nil
		})
		if err != nil {
			return votes, err
		}

		votes.Edits[ns] = edits
		votes.VotePower += float64(edits) * opts.Weights.Edit[ns]
		if pageWeight, ok := opts.Weights.Page[ns]; ok {
			votes.NewPages += pages
			votes.VotePower += float64(pages) * pageWeight
		}
	}
	return votes, nil
}

// ReadUserList reads one user name per line, skipping blank lines.
func ReadUserList(r io.Reader) ([]string, error) {
	var users []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name != "" {
			users = append(users, name)
		}
	}
	return users, sc.Err()
}

func renderVotesText(out io.Writer, results []UserVotes, table *weights.Table) error {
	for _, votes := range results {
		fmt.Fprintf(out, "User %s\n", votes.User)
		for _, ns := range table.EditNamespaces() {
			fmt.Fprintf(out, "N%d: %d\n", ns, votes.Edits[ns])
		}
		fmt.Fprintf(out, "NewPages: %d\n", votes.NewPages)
		fmt.Fprintf(out, "VotePower: %.4g\n\n", votes.VotePower)
	}
	return nil
}

func renderVotesJSON(out io.Writer, results []UserVotes) error {
	payload := make(map[string]map[string]any, len(results))
	for _, votes := range results {
		entry := make(map[string]any, len(votes.Edits)+2)
		for ns, count := range votes.Edits {
			entry[strconv.Itoa(ns)] = count
		}
		entry["NewPages"] = votes.NewPages
		entry["VotePower"] = votes.VotePower
		payload[votes.User] = entry
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return enc.Encode(payload)
}

func renderVotesWikitable(out io.Writer, results []UserVotes, table *weights.Table) error {
	namespaces := table.EditNamespaces()

	fmt.Fprintln(out, `{| class="wikitable"`)
	fmt.Fprintln(out, " ! User")
	for _, ns := range namespaces {
		fmt.Fprintf(out, " ! N%d\n", ns)
	}
	fmt.Fprintln(out, " ! A")
	fmt.Fprintln(out, " ! Vote power (computed)")
	fmt.Fprintln(out, " ! Vote power (final)")
	for _, votes := range results {
		fmt.Fprintln(out, " |-")
		fmt.Fprintf(out, " | {{ U|%s }}\n", votes.User)
		for _, ns := range namespaces {
			fmt.Fprintf(out, ` | style="text-align: right;" | %d`+"\n", votes.Edits[ns])
		}
		fmt.Fprintf(out, ` | style="text-align: right;" | %d`+"\n", votes.NewPages)
		fmt.Fprintf(out, ` | style="text-align: right;" | %.4g`+"\n", votes.VotePower)
		fmt.Fprintln(out, ` | style="text-align: right;" | ?`)
	}
	fmt.Fprintln(out, " |}")
	return nil
}
