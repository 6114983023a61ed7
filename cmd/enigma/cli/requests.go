package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/npnl/enigma-request/internal/reqdoc"
	"github.com/npnl/enigma-request/internal/utils"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List, fetch and submit data requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submitted requests, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := apiClient().ListRequests(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("No requests yet."))
			return nil
		}
		for _, r := range list {
			status := r.Status
			if r.ProposalStatus != "" {
				status += "/" + r.ProposalStatus
			}
			fmt.Fprintf(out, "%s  %s  %s <%s>  %s\n",
				sectionStyle.Render(r.FileName),
				dimStyle.Render(r.Time.Format("2006-01-02 15:04")),
				r.Name, r.Email,
				warnStyle.Render(status),
			)
		}
		return nil
	},
}

var requestsGetOut string

var requestsGetCmd = &cobra.Command{
	Use:   "get <file-name>",
	Short: "Fetch one submitted request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := apiClient().GetRequest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(req, "", "  ")
		if err != nil {
			return err
		}
		if requestsGetOut == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		return os.WriteFile(requestsGetOut, data, 0o644)
	},
}

var (
	submitName  string
	submitEmail string
	submitNotes string
)

var requestsSubmitCmd = &cobra.Command{
	Use:   "submit <document>",
	Short: "Submit a request document or state file",
	Long:  "Submits a request document. A state file is accepted as well; its request is unwrapped. --name and --email fill in or replace the requestor.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		doc, err := reqdoc.Parse(data)
		if err != nil {
			return err
		}
		if submitName != "" || submitEmail != "" {
			if doc.Requestor == nil {
				doc.Requestor = &reqdoc.Requestor{}
			}
			if submitName != "" {
				doc.Requestor.Name = strings.TrimSpace(submitName)
			}
			if submitEmail != "" {
				doc.Requestor.Email = strings.TrimSpace(submitEmail)
			}
		}
		if doc.Requestor != nil && doc.Requestor.Email != "" && !utils.IsValidRequestorEmail(doc.Requestor.Email) {
			return fmt.Errorf("invalid requestor email %q", doc.Requestor.Email)
		}
		if submitNotes != "" {
			doc.Notes = submitNotes
		}
		ack, err := apiClient().SubmitRequest(cmd.Context(), doc)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), checkMark()+" "+keyValue("Submitted", ack.FileName))
		return nil
	},
}

func init() {
	requestsGetCmd.Flags().StringVarP(&requestsGetOut, "out", "o", "", "write the request to a file instead of stdout")
	requestsSubmitCmd.Flags().StringVar(&submitName, "name", "", "requestor name")
	requestsSubmitCmd.Flags().StringVar(&submitEmail, "email", "", "requestor email")
	requestsSubmitCmd.Flags().StringVar(&submitNotes, "notes", "", "replace the document notes")
	requestsCmd.AddCommand(requestsListCmd, requestsGetCmd, requestsSubmitCmd)
}
