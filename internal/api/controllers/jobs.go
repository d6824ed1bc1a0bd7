package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hunght/gograb/internal/app"
	"github.com/hunght/gograb/internal/domain"
	"github.com/labstack/echo/v5"
)

type JobsController struct {
	App *app.Context
}

// Enqueue creates pending rows for each submitted URL. No downloading
// happens here; the scheduler picks the rows up on its own.
func (ctrl *JobsController) Enqueue(c *echo.Context) error {
	var req EnqueueRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
	}

	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if v := strings.TrimSpace(u); v != "" {
			urls = append(urls, v)
		}
	}
	if len(urls) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "at least one URL is required"})
	}

	ids, err := ctrl.App.Engine.Enqueue(domain.EnqueueParams{
		URLs:                   urls,
		Format:                 req.Format,
		OutputFormat:           req.OutputFormat,
		OutputPath:             req.OutputPath,
		OutputFilenameTemplate: req.FilenameTemplate,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusCreated, EnqueueResponse{IDs: ids})
}

func (ctrl *JobsController) List(c *echo.Context) error {
	filter := domain.JobFilter{
		Status: domain.JobStatus(c.QueryParam("status")),
	}

	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	if filter.Status != "" && !domain.IsKnownStatus(filter.Status) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown status filter"})
	}

	jobs, err := ctrl.App.Engine.ListJobs(filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if jobs == nil {
		jobs = []*domain.DownloadJob{}
	}

	return c.JSON(http.StatusOK, jobs)
}

func (ctrl *JobsController) Get(c *echo.Context) error {
	job, err := ctrl.App.Engine.GetJob(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if job == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "job not found"})
	}

	return c.JSON(http.StatusOK, job)
}

// Delete removes a job row. Active jobs are refused so a live subprocess is
// never orphaned; cancel first.
func (ctrl *JobsController) Delete(c *echo.Context) error {
	if err := ctrl.App.Engine.Delete(c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrJobActive) {
			return c.JSON(http.StatusConflict, ErrorResponse{Error: "job is active, cancel it first"})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

func (ctrl *JobsController) Cancel(c *echo.Context) error {
	if !ctrl.App.Engine.Cancel(c.Param("id")) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "job cannot be cancelled"})
	}
	return c.NoContent(http.StatusOK)
}

func (ctrl *JobsController) Pause(c *echo.Context) error {
	if !ctrl.App.Engine.Pause(c.Param("id")) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "job is not active"})
	}
	return c.NoContent(http.StatusOK)
}

func (ctrl *JobsController) Resume(c *echo.Context) error {
	if !ctrl.App.Engine.Resume(c.Param("id")) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "job is not paused"})
	}
	return c.NoContent(http.StatusOK)
}

func (ctrl *JobsController) Retry(c *echo.Context) error {
	if !ctrl.App.Engine.Retry(c.Param("id")) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "job is not failed or not retryable"})
	}
	return c.NoContent(http.StatusOK)
}

func (ctrl *JobsController) Stats(c *echo.Context) error {
	stats, err := ctrl.App.Engine.Stats()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}
