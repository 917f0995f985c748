package web

import (
	"bytes"
	"errors"
	"io/ioutil"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sdeoras/cotton/diagnosis"
	"github.com/sdeoras/cotton/session"
	"github.com/sirupsen/logrus"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.existing(r), http.StatusOK, "")
}

// diagnose only allocates a session once an upload has been classified, so
// rejected or anonymous requests never grow the store.
func (s *Server) diagnose(w http.ResponseWriter, r *http.Request) {
	sess := s.existing(r)
	log := logrus.WithField("request", middleware.GetReqID(r.Context()))

	if r.ContentLength > s.maxUpload {
		s.render(w, r, sess, http.StatusRequestEntityTooLarge, "The file is too large.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.render(w, r, sess, http.StatusRequestEntityTooLarge, "The file is too large.")
			return
		}
		s.render(w, r, sess, http.StatusBadRequest, "The upload could not be read.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		s.render(w, r, sess, http.StatusBadRequest, "Choose a JPEG or PNG image to analyze.")
		return
	}
	defer file.Close()
	data, err := ioutil.ReadAll(file)
	if err != nil {
		log.Error("error reading upload: ", err)
		s.render(w, r, sess, http.StatusBadRequest, "The upload could not be read.")
		return
	}

	contentType := http.DetectContentType(data)
	if contentType != "image/jpeg" && contentType != "image/png" {
		log.WithField("type", contentType).Info("rejected upload")
		s.render(w, r, sess, http.StatusUnsupportedMediaType, "Only JPEG and PNG images are accepted.")
		return
	}

	res, err := s.pipeline.Run(r.Context(), data)
	switch {
	case errors.Is(err, diagnosis.ErrUnsupportedFormat):
		s.render(w, r, sess, http.StatusUnsupportedMediaType, "Only JPEG and PNG images are accepted.")
		return
	case errors.Is(err, diagnosis.ErrCorruptImage):
		log.Info("undecodable upload: ", err)
		s.render(w, r, sess, http.StatusBadRequest, "The image could not be decoded.")
		return
	case err != nil:
		log.Error("error in diagnosis: ", err)
		s.render(w, r, sess, http.StatusInternalServerError, "The classifier failed on this image.")
		return
	}

	sess = s.session(w, r)
	id := sess.SetCurrent(session.Diagnosis{
		Filename:    header.Filename,
		ContentType: contentType,
		Image:       data,
		Result:      res,
		CreatedAt:   s.now(),
	})
	log.WithField("session", sess.ID).
		WithField("diagnosis", id).
		WithField("label", res.Label).
		WithField("confidence", res.Confidence).
		Info("diagnosed")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) {
	sess := s.existing(r)
	if err := r.ParseForm(); err != nil {
		s.render(w, r, sess, http.StatusBadRequest, "Bad form.")
		return
	}
	if sess == nil {
		s.render(w, r, nil, http.StatusConflict, "That diagnosis is no longer on screen.")
		return
	}
	entry, ok := sess.RecordCurrent(r.PostFormValue("diagnosis"), s.now())
	if !ok {
		s.render(w, r, sess, http.StatusConflict, "That diagnosis is no longer on screen.")
		return
	}
	logrus.WithField("session", sess.ID).
		WithField("label", entry.Label).
		Info("recorded diagnosis")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	sess := s.existing(r)
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	d, ok := sess.Current()
	if !ok || d.ID != chi.URLParam(r, "id") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, "", d.CreatedAt, bytes.NewReader(d.Image))
}

// render draws the dashboard. A nil sess renders the empty page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, sess *session.Session, status int, msg string) {
	page := pageView{
		Error:       msg,
		MaxUploadMB: s.maxUpload >> 20,
	}
	if sess != nil {
		page.History = sess.History()
		if d, ok := sess.Current(); ok {
			v, err := s.diagnosisView(d)
			if err != nil {
				logrus.Error("error building view: ", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			page.Diagnosis = v
		}
	}

	var b bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&b, "index.html", page); err != nil {
		logrus.Error("error rendering page: ", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = b.WriteTo(w)
}
