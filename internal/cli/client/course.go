package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

type courseView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	InstructorID string `json:"instructor_id"`
	Summary      string `json:"summary"`
	CreatedAt    string `json:"created_at"`
	// Enrolled is only sent with the full catalog.
	Enrolled *bool `json:"enrolled,omitempty"`
}

func CourseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Manage courses",
	}

	cmd.AddCommand(courseCreateCmd())
	cmd.AddCommand(courseListCmd())
	cmd.AddCommand(courseGetCmd())
	cmd.AddCommand(courseDeleteCmd())
	cmd.AddCommand(courseEnrollCmd())
	cmd.AddCommand(courseUnenrollCmd())
	cmd.AddCommand(courseReportCmd())

	return cmd
}

func courseCreateCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a course (instructors only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Post("/courses", map[string]string{"id": id, "name": args[0]})
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var course courseView
			if err := resp.Decode(&course); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Created course %s (%s)\n", course.ID, course.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Course id (generated when empty)")

	return cmd
}

func courseListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your courses",
		Long:  "List the courses you teach or are enrolled in. With --all, list every course and whether you are enrolled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			path := "/courses"
			if all {
				path += "?all=true"
			}
			resp, err := c.Get(path)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var courses []courseView
			if err := resp.Decode(&courses); err != nil {
				return err
			}
			printCourses(courses)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "List every course with your enrollment state")

	return cmd
}

func printCourses(courses []courseView) {
	if len(courses) == 0 {
		fmt.Fprintln(stdout, "No courses found")
		return
	}
	for _, course := range courses {
		mark := ""
		if course.Enrolled != nil {
			mark = " [not enrolled]"
			if *course.Enrolled {
				mark = " [enrolled]"
			}
		}
		fmt.Fprintf(stdout, "  %s: %s%s\n", course.ID, course.Name, mark)
	}
}

func courseEnrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <course-id>",
		Short: "Enroll in a course (students only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Post("/courses/"+url.PathEscape(args[0])+"/enroll", nil)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			fmt.Fprintf(stdout, "Enrolled in %s\n", args[0])
			return nil
		},
	}
}

func courseUnenrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unenroll <course-id>",
		Short: "Leave a course (students only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := c.Delete("/courses/" + url.PathEscape(args[0]) + "/enroll"); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Left course %s\n", args[0])
			return nil
		},
	}
}

func courseGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <course-id>",
		Short: "Show a course and its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Get("/courses/" + url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var course courseView
			if err := resp.Decode(&course); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "ID: %s\nName: %s\nInstructor: %s\nCreated: %s\n", course.ID, course.Name, course.InstructorID, course.CreatedAt)
			if course.Summary != "" {
				fmt.Fprintf(stdout, "\n%s\n", course.Summary)
			}
			return nil
		},
	}
}

func courseDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <course-id>",
		Short: "Delete a course, its documents and conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := c.Delete("/courses/" + url.PathEscape(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Deleted course %s\n", args[0])
			return nil
		},
	}
}

func courseReportCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "report <course-id>",
		Short: "Show relevance gate and homework guard statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			path := "/courses/" + url.PathEscape(args[0]) + "/report"
			if since != "" {
				path += "?since=" + url.QueryEscape(since)
			}
			resp, err := c.Get(path)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printRaw(resp)
			}
			var report struct {
				Turns             int     `json:"turns"`
				Answerable        int     `json:"answerable"`
				RejectedForm      int     `json:"rejected_form"`
				RejectedSemantic  int     `json:"rejected_semantic"`
				HomeworkTriggered int     `json:"homework_triggered"`
				AvgTopScore       float64 `json:"avg_top_score"`
			}
			if err := resp.Decode(&report); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Turns:              %d\n", report.Turns)
			fmt.Fprintf(stdout, "Answerable:         %d\n", report.Answerable)
			fmt.Fprintf(stdout, "Rejected (form):    %d\n", report.RejectedForm)
			fmt.Fprintf(stdout, "Rejected (content): %d\n", report.RejectedSemantic)
			fmt.Fprintf(stdout, "Homework policy:    %d\n", report.HomeworkTriggered)
			fmt.Fprintf(stdout, "Avg top score:      %.3f\n", report.AvgTopScore)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "RFC 3339 time or duration such as 168h")

	return cmd
}
