package operations

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/internal/resputil"
	"github.com/raids-lab/staffdesk/pkg/cronjob"
)

// GetCronjobNames godoc
//
//	@Summary		List scheduled jobs
//	@Tags			Operations
//	@Produce		json
//	@Security		Bearer
//	@Success		200	{object}	resputil.Response[[]string]	"job names"
//	@Router			/v1/admin/operations/cronjob/names [get]
func (mgr *OperationsMgr) GetCronjobNames(c *gin.Context) {
	resputil.Success(c, mgr.cronJobManager.JobNames())
}

type RunCronjobReq struct {
	Name string `uri:"name" binding:"required"`
}

// RunCronjob godoc
//
//	@Summary		Run a scheduled job now
//	@Description	Runs the job once outside its schedule and returns the run record
//	@Tags			Operations
//	@Produce		json
//	@Security		Bearer
//	@Param			name	path		string									true	"job name"
//	@Success		200		{object}	resputil.Response[model.CronJobRecord]	"run record"
//	@Failure		404		{object}	resputil.Response[any]					"unknown job"
//	@Router			/v1/admin/operations/cronjob/{name}/run [post]
func (mgr *OperationsMgr) RunCronjob(c *gin.Context) {
	var req RunCronjobReq
	if err := c.ShouldBindUri(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	record, err := mgr.cronJobManager.Trigger(c, req.Name)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, record)
}

type GetCronJobRecordsReq struct {
	Name      []string   `json:"name" form:"name"`
	StartTime *time.Time `json:"startTime" form:"startTime"`
	EndTime   *time.Time `json:"endTime" form:"endTime"`
	Status    *string    `json:"status" form:"status"`
}

// GetCronjobRecords godoc
//
//	@Summary		Query job run records
//	@Tags			Operations
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			use	body		GetCronJobRecordsReq	true	"filter"
//	@Success		200	{object}	resputil.Response[any]	"records and total"
//	@Failure		400	{object}	resputil.Response[any]	"Request parameter error"
//	@Router			/v1/admin/operations/cronjob/records [post]
func (mgr *OperationsMgr) GetCronjobRecords(c *gin.Context) {
	req := &GetCronJobRecordsReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		klog.Error(err)
		resputil.BadRequestError(c, err.Error())
		return
	}

	filter := cronjob.RecordFilter{
		Names:     req.Name,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if req.Status != nil {
		status := model.CronJobRecordStatus(*req.Status)
		filter.Status = &status
	}
	records, total, err := mgr.cronJobManager.GetCronjobRecords(c, filter)
	if err != nil {
		klog.Error(err)
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	resputil.Success(c, map[string]any{
		"records": records,
		"total":   total,
	})
}

type DeleteCronJobRecordsReq struct {
	ID        []uint     `json:"id"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

// DeleteCronjobRecords godoc
//
//	@Summary		Delete job run records
//	@Tags			Operations
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			use	body		DeleteCronJobRecordsReq	true	"ids or time range"
//	@Success		200	{object}	resputil.Response[any]	"deleted count"
//	@Failure		400	{object}	resputil.Response[any]	"Request parameter error"
//	@Router			/v1/admin/operations/cronjob/records [delete]
func (mgr *OperationsMgr) DeleteCronjobRecords(c *gin.Context) {
	req := &DeleteCronJobRecordsReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		klog.Error(err)
		resputil.BadRequestError(c, err.Error())
		return
	}

	if len(req.ID) == 0 && req.StartTime == nil && req.EndTime == nil {
		resputil.BadRequestError(c, "id or startTime or endTime is required")
		return
	}

	deleted, err := mgr.cronJobManager.DeleteCronjobRecords(c, req.ID, req.StartTime, req.EndTime)
	if err != nil {
		klog.Error(err)
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	resputil.Success(c, map[string]string{
		"deleted": fmt.Sprintf("%d", deleted),
	})
}
