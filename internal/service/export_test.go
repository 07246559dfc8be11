package service

import "time"

// SetNotificationClock 替换通知服务的时钟
func SetNotificationClock(s NotificationService, now func() time.Time) {
	s.(*notificationService).now = now
}

// SetRecurrenceClock 替换循环任务服务的时钟
func SetRecurrenceClock(s RecurrenceService, now func() time.Time) {
	s.(*recurrenceService).now = now
}

// SetWorkloadClock 替换负载统计服务的时钟
func SetWorkloadClock(s WorkloadService, now func() time.Time) {
	s.(*workloadService).now = now
}
